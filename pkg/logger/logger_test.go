package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tokenprobe/pkg/logger"
)

type brokenFile struct{}

func (brokenFile) Write(_ []byte) (int, error) {
	return 0, errors.New("no space left on device")
}

// jsonLines decodes one JSON record per line.
func jsonLines(buf *bytes.Buffer) []map[string]any {
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		Expect(json.Unmarshal([]byte(line), &rec)).To(Succeed())
		records = append(records, rec)
	}
	return records
}

var _ = Describe("Logger", func() {
	Describe("console", func() {
		It("writes info-level text by default", func() {
			var console bytes.Buffer
			l := logger.New(logger.WithWriter(&console))
			l.Info("prompt token count", "tokens", 21)
			l.Debug("ignoring unrecognized stream line")

			Expect(console.String()).To(ContainSubstring("prompt token count"))
			Expect(console.String()).To(ContainSubstring("tokens=21"))
			Expect(console.String()).NotTo(ContainSubstring("unrecognized"))
		})

		It("shows debug records with --debug", func() {
			var console bytes.Buffer
			l := logger.New(logger.WithWriter(&console), logger.WithDebug(true))
			l.Debug("sending streaming request")

			Expect(console.String()).To(ContainSubstring("sending streaming request"))
		})

		It("writes JSON with --json-logs even when pretty is requested", func() {
			var console bytes.Buffer
			l := logger.New(logger.WithWriter(&console), logger.WithJSON(true), logger.WithPretty(true))
			l.Warn("multiple usage records in stream, keeping the last", "total", 25)

			records := jsonLines(&console)
			Expect(records).To(HaveLen(1))
			Expect(records[0]["level"]).To(Equal("WARN"))
			Expect(records[0]["total"]).To(BeNumerically("==", 25))
		})

		It("writes pretty output", func() {
			var console bytes.Buffer
			l := logger.New(logger.WithWriter(&console), logger.WithPretty(true))
			l.Info("stream reconciled")

			Expect(console.String()).To(ContainSubstring("stream reconciled"))
		})
	})

	Describe("log file", func() {
		var console, file bytes.Buffer

		BeforeEach(func() {
			console.Reset()
			file.Reset()
		})

		It("keeps debug records in the file while the console stays at info", func() {
			l := logger.New(logger.WithWriter(&console), logger.WithPretty(true), logger.WithLogFile(&file))
			l.Debug("sending streaming request", "endpoint", "https://apim-demo.azure-api.net")
			l.Info("prompt token count", "tokens", 21)

			Expect(console.String()).NotTo(ContainSubstring("sending streaming request"))
			Expect(console.String()).To(ContainSubstring("prompt token count"))

			records := jsonLines(&file)
			Expect(records).To(HaveLen(2))
			Expect(records[0]["msg"]).To(Equal("sending streaming request"))
			Expect(records[0]["level"]).To(Equal("DEBUG"))
			Expect(records[1]["tokens"]).To(BeNumerically("==", 21))
		})

		It("carries bound attributes and groups into the file", func() {
			l := logger.New(logger.WithWriter(&console), logger.WithLogFile(&file))
			l.With("request_id", "req-1").WithGroup("usage").Info("server usage", "total_tokens", 25)

			records := jsonLines(&file)
			Expect(records).To(HaveLen(1))
			Expect(records[0]["request_id"]).To(Equal("req-1"))
			Expect(records[0]["usage"]).To(HaveKeyWithValue("total_tokens", BeNumerically("==", 25)))
			Expect(console.String()).To(ContainSubstring("usage.total_tokens=25"))
		})

		It("keeps logging to the console when the file fails", func() {
			l := logger.New(logger.WithWriter(&console), logger.WithLogFile(brokenFile{}))
			l.Error("gateway returned error", "status", 502)

			Expect(console.String()).To(ContainSubstring("gateway returned error"))
		})
	})

	Describe("Multi", func() {
		It("dispatches each record by the level of every logger", func() {
			var info, debug bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&info)),
				logger.New(logger.WithWriter(&debug), logger.WithDebug(true)),
				nil,
			)

			multi.Debug("chunk decoded")
			multi.Info("prompt token count")

			Expect(info.String()).NotTo(ContainSubstring("chunk decoded"))
			Expect(info.String()).To(ContainSubstring("prompt token count"))
			Expect(debug.String()).To(ContainSubstring("chunk decoded"))
			Expect(debug.String()).To(ContainSubstring("prompt token count"))
		})

		It("reports the failure of one handler without skipping the others", func() {
			var ok bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(brokenFile{}), logger.WithJSON(true)),
				logger.New(logger.WithWriter(&ok), logger.WithJSON(true)),
			)

			r := slog.NewRecord(time.Now(), slog.LevelInfo, "stream reconciled", 0)
			err := multi.Handler().Handle(context.Background(), r)

			Expect(err).To(MatchError(ContainSubstring("no space left on device")))
			Expect(jsonLines(&ok)).To(HaveLen(1))
		})
	})

	Describe("Nop", func() {
		It("discards everything", func() {
			l := logger.Nop()
			Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
			Expect(func() { l.With("key", "value").WithGroup("g").Error("msg") }).NotTo(Panic())
		})

		It("stands in for a nil logger", func() {
			l := logger.New()
			Expect(logger.OrNop(l)).To(BeIdenticalTo(l))
			Expect(logger.OrNop(nil).Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		})
	})

	Describe("Context", func() {
		It("round-trips a logger", func() {
			l := logger.New()
			ctx := logger.NewContext(context.Background(), l)
			Expect(logger.FromContext(ctx)).To(BeIdenticalTo(l))
		})

		It("falls back to a discarding logger", func() {
			l := logger.FromContext(context.Background())
			Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		})
	})
})
