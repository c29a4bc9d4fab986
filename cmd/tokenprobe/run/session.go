package runcmder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/papercomputeco/tokenprobe/pkg/cliui"
	"github.com/papercomputeco/tokenprobe/pkg/config"
	"github.com/papercomputeco/tokenprobe/pkg/dotdir"
	"github.com/papercomputeco/tokenprobe/pkg/gateway"
	"github.com/papercomputeco/tokenprobe/pkg/llm"
	"github.com/papercomputeco/tokenprobe/pkg/logger"
	"github.com/papercomputeco/tokenprobe/pkg/probe"
	"github.com/papercomputeco/tokenprobe/pkg/report"
	"github.com/papercomputeco/tokenprobe/pkg/stream"
	"github.com/papercomputeco/tokenprobe/pkg/tokencount"
)

// Session is one probe from configuration to printed report. The run and
// trace commands both execute a Session.
type Session struct {
	Config   *config.Config
	Messages []llm.Message

	SubscriptionKey    string
	DebugAuthorization string

	// Trace is set for traced requests; it adds the debug table and charts.
	Trace *report.DebugInfo

	RawPath   string
	JSON      bool
	Markdown  bool
	Payloads  bool
	ConfigDir string

	// RenderMarkdown renders the reply for --markdown; cliui.RenderMarkdown
	// when nil.
	RenderMarkdown func(string) (string, error)

	Out    io.Writer
	Logger *slog.Logger
}

// Execute runs the probe and prints the report. A stream that did not end
// cleanly still prints its report and returns an error wrapping
// probe.ErrIncomplete.
func (s *Session) Execute(ctx context.Context) error {
	log := logger.OrNop(s.Logger)
	out := s.Out
	if out == nil {
		out = os.Stdout
	}

	counter, err := tokencount.New(s.Config.Tokens.Model, tokencount.WithLogger(log))
	if err != nil {
		return fmt.Errorf("token model %q: %w", s.Config.Tokens.Model, err)
	}

	client, err := gateway.NewClient(gateway.Config{
		GatewayURL:         s.Config.Gateway.URL,
		Deployment:         s.Config.Gateway.Deployment,
		APIVersion:         s.Config.Gateway.APIVersion,
		ClientName:         s.Config.Gateway.ClientName,
		SubscriptionKey:    s.SubscriptionKey,
		DebugAuthorization: s.DebugAuthorization,
	}, gateway.WithLogger(log))
	if err != nil {
		return err
	}

	req := probe.Request{
		Messages: s.Messages,
		Params:   s.Config.Request,
	}

	if s.RawPath != "" {
		f, err := os.Create(s.RawPath)
		if err != nil {
			return fmt.Errorf("creating raw capture file: %w", err)
		}
		defer f.Close()
		req.Capture = f
	}

	if !s.JSON {
		fmt.Fprintf(out, "\n  %s\n\n", cliui.HeaderStyle.Render("Assistant"))
		req.Observer = func(f stream.Fragment) {
			fmt.Fprint(out, f.Text)
		}
	}

	p, err := probe.New(client, counter, probe.WithLogger(log))
	if err != nil {
		return err
	}

	outcome, err := p.Run(ctx, req)
	if err != nil {
		return err
	}
	if outcome.CaptureErr != nil {
		log.Warn("raw capture file is incomplete", "path", s.RawPath, "error", outcome.CaptureErr)
	}
	res := outcome.Result

	doc := report.NewDocument(res, s.Payloads)
	doc.RequestID = outcome.RequestID
	doc.Model = counter.Profile().Canonical
	doc.Encoding = counter.Encoding()
	if s.Trace != nil {
		info := *s.Trace
		info.StatusCode = outcome.Status
		info.RequestID = outcome.RequestID
		doc.Debug = &info
	}

	s.saveLastRun(log, doc)

	if s.JSON {
		if err := report.WriteJSON(out, doc); err != nil {
			return err
		}
		return outcome.Err()
	}

	fmt.Fprint(out, "\n\n")
	s.printReport(out, log, doc, res)

	return outcome.Err()
}

func (s *Session) printReport(out io.Writer, log *slog.Logger, doc *report.Document, res *stream.Result) {
	var opts []report.Option
	if f, ok := out.(*os.File); !ok || !cliui.IsTerminal(f) {
		opts = append(opts, report.WithPlain())
	}
	r := report.New(out, opts...)

	if s.Markdown && res.Text != "" {
		render := s.RenderMarkdown
		if render == nil {
			render = cliui.RenderMarkdown
		}

		rendered, err := render(res.Text)
		if err != nil {
			log.Warn("could not render reply as markdown", "error", err)
			rendered = res.Text
		}
		fmt.Fprintln(out, rendered)
	}

	if s.Payloads {
		fmt.Fprintf(out, "  %s\n\n", cliui.HeaderStyle.Render("Raw stream payloads"))
		if err := report.WritePayloads(out, doc.Payloads); err != nil {
			log.Warn("could not print payloads", "error", err)
		}
		fmt.Fprintln(out)
	}

	if doc.Debug != nil {
		fmt.Fprintf(out, "  %s\n%s\n\n", cliui.HeaderStyle.Render("Debugging Information"), r.Debug(*doc.Debug, res))
	}

	fmt.Fprintf(out, "  %s %s %s\n",
		cliui.KeyStyle.Render("Token model:"),
		cliui.ValueStyle.Render(doc.Model),
		cliui.DimStyle.Render("("+doc.Encoding+")"),
	)
	fmt.Fprintf(out, "  %s\n%s\n\n", cliui.HeaderStyle.Render("Comparison"), r.Comparison(res))
	fmt.Fprint(out, r.Summary(res))

	if doc.Debug != nil {
		fmt.Fprintf(out, "\n  %s\n%s\n", cliui.HeaderStyle.Render("Token Streaming Timeline"), r.Timeline(res))
		fmt.Fprintf(out, "\n  %s\n%s\n", cliui.HeaderStyle.Render("Token Distribution"), r.Distribution(res.ServerUsage))
	}
}

func (s *Session) saveLastRun(log *slog.Logger, doc *report.Document) {
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, doc); err != nil {
		log.Warn("could not encode run report", "error", err)
		return
	}

	if err := dotdir.NewManager().SaveLastRun(buf.Bytes(), s.ConfigDir); err != nil {
		log.Warn("could not save run report", "error", err)
	}
}
