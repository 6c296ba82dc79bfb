package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		name    string
		cb      *tele.Callback
		key     string
		payload string
	}{
		{"nil", nil, "", ""},
		{"plain", &tele.Callback{Data: "text_to_vcf"}, "text_to_vcf", ""},
		{"encoded", &tele.Callback{Data: "\fcheck_join|again"}, "check_join", "again"},
		{"unique set", &tele.Callback{Unique: "count", Data: "x"}, "count", "x"},
		{"padded", &tele.Callback{Data: " count "}, "count", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, payload := ParseCallbackData(tt.cb)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.payload, payload)
		})
	}
}
