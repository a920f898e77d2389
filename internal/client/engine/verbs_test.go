package engine

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWithQuery(t *testing.T) {
	u, _ := url.Parse("http://engine/Iou/1/pay?x=1")

	got := WithQuery(u, map[string]any{
		"amount": decimal.RequireFromString("12.50"),
		"note":   "a b",
		"n":      json.Number("3"),
		"flag":   true,
		"nested": map[string]any{"k": "v"},
	})

	q := got.Query()
	assert.Equal(t, "1", q.Get("x"))
	assert.Equal(t, "12.5", q.Get("amount"))
	assert.Equal(t, "a b", q.Get("note"))
	assert.Equal(t, "3", q.Get("n"))
	assert.Equal(t, "true", q.Get("flag"))
	assert.Equal(t, `{"k":"v"}`, q.Get("nested"))
	assert.Equal(t, "x=1", u.RawQuery, "input url must not be modified")
}

func TestWithQuery_EmptyPayload(t *testing.T) {
	u, _ := url.Parse("http://engine/Iou/1/forgive")
	assert.Equal(t, u.String(), WithQuery(u, nil).String())
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "nope", errorMessage(400, []byte(`{"message":"nope"}`)))
	assert.Equal(t, "bad", errorMessage(400, []byte(`{"error":"bad"}`)))
	assert.Equal(t, "plain text", errorMessage(400, []byte("plain text\n")))
	assert.Equal(t, http.StatusText(409), errorMessage(409, []byte(`{"other":1}`)))
	assert.Equal(t, http.StatusText(502), errorMessage(502, []byte("<html></html>")))
	assert.Equal(t, http.StatusText(500), errorMessage(500, nil))
}

func TestErrorMessage_TruncatesOnRuneBoundary(t *testing.T) {
	// 'é' is two bytes, so an odd byte limit lands inside a rune.
	body := "x" + strings.Repeat("é", 150)

	got := errorMessage(400, []byte(body))
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxMessageLen)
	assert.Equal(t, "x"+strings.Repeat("é", 99), got)

	assert.Equal(t, "short", truncate("short", maxMessageLen))
}

func TestStatusError(t *testing.T) {
	assert.Equal(t, "engine returned 409: already paid", (&StatusError{StatusCode: 409, Message: "already paid"}).Error())
	assert.Equal(t, "engine returned 500", (&StatusError{StatusCode: 500}).Error())
}
