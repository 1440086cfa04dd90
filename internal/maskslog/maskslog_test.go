// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package maskslog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func logger(buf *bytes.Buffer, opts ...Option) *slog.Logger {
	return slog.New(NewHandler(slog.NewTextHandler(buf, nil), opts...))
}

func TestHandler(t *testing.T) {
	t.Run("will mask", func(t *testing.T) {
		testCases := []struct {
			name string
			log  func(*slog.Logger)
			want string
		}{
			{
				name: "record attributes",
				log:  func(l *slog.Logger) { l.Info("access denied", slog.String("entity", "jane"), slog.String("method", "GET")) },
				want: "entity=**** method=GET",
			},
			{
				name: "logger attributes",
				log:  func(l *slog.Logger) { l.With(slog.String("entity", "jane")).Info("synchronized") },
				want: "entity=****",
			},
			{
				name: "grouped attributes",
				log:  func(l *slog.Logger) { l.Info("checked", slog.Group("acl", slog.String("entity", "jane"))) },
				want: "acl.entity=****",
			},
			{
				name: "attributes of derived loggers",
				log:  func(l *slog.Logger) { l.WithGroup("acl").With(slog.Int("n", 1)).Info("checked", slog.String("entity", "jane")) },
				want: "acl.entity=****",
			},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				var buf bytes.Buffer
				tc.log(logger(&buf, Keys("entity")))
				assert.Contains(t, buf.String(), tc.want)
				assert.NotContains(t, buf.String(), "jane")
			})
		}
	})

	t.Run("will transform attributes with a custom func", func(t *testing.T) {
		var buf bytes.Buffer
		upper := func(a slog.Attr) slog.Attr { return slog.String(a.Key, strings.ToUpper(a.Value.String())) }
		logger(&buf, Attr("entity", upper)).Info("checked", slog.String("entity", "jane"))
		assert.Contains(t, buf.String(), "entity=JANE")
	})

	t.Run("will leave other attributes untouched", func(t *testing.T) {
		var buf bytes.Buffer
		logger(&buf).Info("checked", slog.String("entity", "jane"))
		assert.Contains(t, buf.String(), "entity=jane")
	})
}
