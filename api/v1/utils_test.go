package v1

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientIPForHeaders(t *testing.T, headers map[string]string) string {
	t.Helper()

	app := fiber.New()
	var got string
	app.Get("/probe", func(c *fiber.Ctx) error {
		got = getClientIP(c)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/probe", nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	_, err := app.Test(req)
	require.NoError(t, err)
	return got
}

func TestGetClientIP(t *testing.T) {
	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		ip := clientIPForHeaders(t, map[string]string{
			"X-Forwarded-For": "198.51.100.7, 10.0.0.1",
		})
		assert.Equal(t, "198.51.100.7", ip)
	})

	t.Run("skips private addresses in the chain", func(t *testing.T) {
		ip := clientIPForHeaders(t, map[string]string{
			"X-Forwarded-For": "10.0.0.5, 198.51.100.9",
		})
		assert.Equal(t, "198.51.100.9", ip)
	})

	t.Run("falls back to proxy headers", func(t *testing.T) {
		ip := clientIPForHeaders(t, map[string]string{
			"X-Real-IP": "203.0.113.20",
		})
		assert.Equal(t, "203.0.113.20", ip)
	})

	t.Run("parses the Forwarded header", func(t *testing.T) {
		ip := clientIPForHeaders(t, map[string]string{
			"Forwarded": `for="203.0.113.43";proto=https`,
		})
		assert.Equal(t, "203.0.113.43", ip)
	})

	t.Run("prefers IPv4 over IPv6", func(t *testing.T) {
		ip := clientIPForHeaders(t, map[string]string{
			"X-Forwarded-For": "2001:db8::1, 198.51.100.2",
		})
		assert.Equal(t, "198.51.100.2", ip)
	})

	t.Run("uses public IPv6 when no IPv4 is present", func(t *testing.T) {
		ip := clientIPForHeaders(t, map[string]string{
			"X-Forwarded-For": "2001:db8::1",
		})
		assert.Equal(t, "2001:db8::1", ip)
	})

	t.Run("defaults to loopback when nothing is usable", func(t *testing.T) {
		ip := clientIPForHeaders(t, nil)
		assert.Equal(t, "127.0.0.1", ip)
	})
}

func TestNormalizeIP(t *testing.T) {
	cases := map[string]string{
		"198.51.100.1":         "198.51.100.1",
		" 198.51.100.1 ":       "198.51.100.1",
		"198.51.100.1:8080":    "198.51.100.1",
		"[2001:db8::1]:443":    "2001:db8::1",
		"::ffff:198.51.100.1":  "198.51.100.1",
		`"198.51.100.1"`:       "198.51.100.1",
		"fe80::1%eth0":         "fe80::1",
	}
	for raw, expected := range cases {
		clean, parsed := normalizeIP(raw)
		require.NotNil(t, parsed, raw)
		assert.Equal(t, expected, clean, raw)
	}

	_, parsed := normalizeIP("not-an-ip")
	assert.Nil(t, parsed)
}

func TestGenerateETag(t *testing.T) {
	a := generateETag([]byte("content-a"))
	b := generateETag([]byte("content-b"))

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, generateETag([]byte("content-a")))
	assert.True(t, len(a) > 2 && a[0] == '"' && a[len(a)-1] == '"')
}
