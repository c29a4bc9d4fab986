package probe_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tokenprobe/pkg/config"
	"github.com/papercomputeco/tokenprobe/pkg/gateway"
	"github.com/papercomputeco/tokenprobe/pkg/llm"
	"github.com/papercomputeco/tokenprobe/pkg/probe"
	"github.com/papercomputeco/tokenprobe/pkg/stream"
	"github.com/papercomputeco/tokenprobe/pkg/tokencount"
)

// wordEncoder encodes one token per whitespace separated word.
type wordEncoder struct{}

func (wordEncoder) Encode(text string) []int {
	return make([]int, len(strings.Fields(text)))
}

type failingWriter struct {
	err error
}

func (f failingWriter) Write(_ []byte) (int, error) {
	return 0, f.err
}

const answerBody = "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"The answer\"}}]}\n\n" +
	"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\" is 4.\"},\"finish_reason\":\"stop\"}]}\n\n" +
	"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":20,\"completion_tokens\":5,\"total_tokens\":25}}\n\n" +
	"data: [DONE]\n\n"

var _ = Describe("Messages", func() {
	It("puts the system prompt first", func() {
		msgs := probe.Messages("Be brief.", "What is 2+2?")
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Role).To(Equal(llm.RoleSystem))
		Expect(msgs[1].Role).To(Equal(llm.RoleUser))
	})

	It("omits an empty system prompt", func() {
		Expect(probe.Messages("", "hi")).To(HaveLen(1))
	})
})

var _ = Describe("ChatRequest", func() {
	It("carries the generation parameters", func() {
		rc := config.NewDefaultConfig().Request
		req := probe.ChatRequest(probe.Messages("", "hi"), rc)

		Expect(*req.MaxTokens).To(Equal(200))
		Expect(*req.Temperature).To(Equal(0.7))
		Expect(*req.TopP).To(Equal(0.95))
		Expect(*req.FrequencyPenalty).To(BeZero())
		Expect(req.Stream).To(BeTrue())
		Expect(req.StreamOptions.IncludeUsage).To(BeTrue())
	})
})

var _ = Describe("Probe", func() {
	var (
		upstream *httptest.Server
		received map[string]any
		counter  *tokencount.Counter
		request  probe.Request
	)

	serve := func(status int, payload string) string {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &received)

			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(status)
			fmt.Fprint(w, payload)
		}))
		return upstream.URL
	}

	newProbe := func(url string) *probe.Probe {
		client, err := gateway.NewClient(gateway.Config{
			GatewayURL:      url,
			Deployment:      "gpt-4o-mini",
			SubscriptionKey: "secret-key",
		})
		Expect(err).NotTo(HaveOccurred())

		p, err := probe.New(client, counter)
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	BeforeEach(func() {
		var err error
		counter, err = tokencount.New("gpt-4o-mini-2024-07-18", tokencount.WithEncoder(wordEncoder{}))
		Expect(err).NotTo(HaveOccurred())

		request = probe.Request{
			Messages: probe.Messages("Be brief.", "What is 2+2?"),
			Params:   config.NewDefaultConfig().Request,
		}
		received = nil
	})

	AfterEach(func() {
		if upstream != nil {
			upstream.Close()
		}
	})

	It("reconciles a complete stream", func() {
		p := newProbe(serve(http.StatusOK, answerBody))

		var seen []string
		request.Observer = func(f stream.Fragment) { seen = append(seen, f.Text) }

		out, err := p.Run(context.Background(), request)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Err()).NotTo(HaveOccurred())
		Expect(out.Status).To(Equal(http.StatusOK))
		Expect(out.RequestID).NotTo(BeEmpty())

		res := out.Result
		Expect(res.Text).To(Equal("The answer is 4."))
		Expect(seen).To(Equal([]string{"The answer", " is 4."}))
		Expect(res.End).To(Equal(stream.EndTerminator))
		Expect(res.FinishReason).To(Equal("stop"))

		// system: 3 + 1 + 2, user: 3 + 1 + 3, priming: 3
		Expect(res.PromptTokens).To(Equal(16))
		// assistant: 3 + 1 + 4, priming: 3
		Expect(res.CompletionTokens).To(Equal(11))
		Expect(res.TotalTokens).To(Equal(27))
		Expect(res.ServerUsage.TotalTokens).To(Equal(25))

		Expect(received).To(HaveKeyWithValue("stream", true))
		Expect(received).To(HaveKeyWithValue("max_tokens", BeNumerically("==", 200)))
	})

	It("copies raw lines to the capture writer", func() {
		p := newProbe(serve(http.StatusOK, answerBody))

		var raw bytes.Buffer
		request.Capture = &raw

		_, err := p.Run(context.Background(), request)
		Expect(err).NotTo(HaveOccurred())
		Expect(raw.String()).To(ContainSubstring("data: [DONE]"))
	})

	It("finishes the stream when the capture writer fails", func() {
		p := newProbe(serve(http.StatusOK, answerBody))

		diskFull := errors.New("no space left on device")
		request.Capture = failingWriter{err: diskFull}

		out, err := p.Run(context.Background(), request)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Err()).NotTo(HaveOccurred())
		Expect(out.Result.End).To(Equal(stream.EndTerminator))
		Expect(out.Result.Text).To(Equal("The answer is 4."))
		Expect(out.Result.TransportErr).To(BeNil())
		Expect(out.CaptureErr).To(MatchError(diskFull))
	})

	It("reports a rejected request as an incomplete outcome", func() {
		p := newProbe(serve(http.StatusUnauthorized, `{"statusCode":401,"message":"Access denied"}`))

		out, err := p.Run(context.Background(), request)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Status).To(Equal(http.StatusUnauthorized))
		Expect(out.Result.End).To(Equal(stream.EndTransportFailure))
		Expect(out.Result.PromptTokens).To(Equal(16))
		Expect(out.Result.Fragments).To(BeEmpty())

		err = out.Err()
		Expect(errors.Is(err, probe.ErrIncomplete)).To(BeTrue())

		var te *stream.TransportError
		Expect(errors.As(err, &te)).To(BeTrue())
		Expect(te.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("reports an unreachable gateway as an incomplete outcome", func() {
		url := serve(http.StatusOK, answerBody)
		upstream.Close()
		upstream = nil

		out, err := newProbe(url).Run(context.Background(), request)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Result.Complete()).To(BeFalse())
		Expect(errors.Is(out.Err(), probe.ErrIncomplete)).To(BeTrue())
	})

	It("refuses a request without messages", func() {
		p := newProbe(serve(http.StatusOK, answerBody))
		request.Messages = nil

		_, err := p.Run(context.Background(), request)
		Expect(err).To(MatchError(stream.ErrNoMessages))
	})
})

var _ = Describe("New", func() {
	It("rejects a missing counter", func() {
		client, err := gateway.NewClient(gateway.Config{
			GatewayURL:      "https://apim-demo.azure-api.net",
			Deployment:      "gpt-4o-mini",
			SubscriptionKey: "secret-key",
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = probe.New(client, nil)
		Expect(err).To(MatchError(stream.ErrNoCounter))
	})

	It("rejects a missing client", func() {
		counter, err := tokencount.New("gpt-4o-mini-2024-07-18", tokencount.WithEncoder(wordEncoder{}))
		Expect(err).NotTo(HaveOccurred())

		_, err = probe.New(nil, counter)
		Expect(err).To(MatchError(probe.ErrNoClient))
	})
})
