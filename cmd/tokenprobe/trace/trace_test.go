package tracecmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/tokenprobe/pkg/debugcreds"
	"github.com/papercomputeco/tokenprobe/pkg/gateway"
	"github.com/papercomputeco/tokenprobe/pkg/tokencount"
)

const serviceID = "/subscriptions/sub/resourceGroups/rg/providers/Microsoft.ApiManagement/service/apim-demo"

const tracedBody = "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Time \"}}]}\n\n" +
	"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"to buy a watch.\"}}]}\n\n" +
	"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":28,\"completion_tokens\":6,\"total_tokens\":34}}\n\n" +
	"data: [DONE]\n\n"

// azRunner answers az invocations by matching on the joined arguments.
type azRunner struct {
	outputs map[string]string
	calls   int
}

func (a *azRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	a.calls++
	call := name + " " + strings.Join(args, " ")
	for needle, out := range a.outputs {
		if strings.Contains(call, needle) {
			return out, nil
		}
	}
	return "", nil
}

var _ = Describe("Trace Command", func() {
	var (
		tmpDir    string
		mgmt      *httptest.Server
		upstream  *httptest.Server
		runner    *azRunner
		gotHeader http.Header
		gotPath   string
		gotBody   map[string]any
		mgmtHits  atomic.Int32
		out       *bytes.Buffer
	)

	newCmd := func(args ...string) *cobra.Command {
		cmd := newTraceCmd(
			debugcreds.WithRunner(runner),
			debugcreds.WithManagementURL(mgmt.URL),
		)
		cmd.PersistentFlags().String("config-dir", "", "Override path to .tokenprobe/ config directory")
		out = &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--config-dir", tmpDir))
		return cmd
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		for _, env := range []string{"RESOURCE_GROUP_NAME", "APIM_DEPLOYMENT_NAME", "OPENAI_DEPLOYMENT_NAME", "OPENAI_API_VERSION", "MODEL_FOR_TOKENS"} {
			GinkgoT().Setenv(env, "")
		}
		GinkgoT().Setenv("APIM_SUBSCRIPTION_KEY", "env-key")

		mgmtHits.Store(0)
		mgmt = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			mgmtHits.Add(1)
			fmt.Fprint(w, `{"token":"debug-token"}`)
		}))

		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeader = r.Header.Clone()
			gotPath = r.URL.Path
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &gotBody)
			fmt.Fprint(w, tracedBody)
		}))

		runner = &azRunner{outputs: map[string]string{
			"outputResources":  serviceID,
			"gatewayUrl":       upstream.URL,
			"get-access-token": "arm-token",
		}}
	})

	AfterEach(func() {
		mgmt.Close()
		upstream.Close()
	})

	It("has trace defaults for the prompt pair", func() {
		cmd := NewTraceCmd()
		Expect(cmd.Flags().Lookup("system").DefValue).To(Equal(defaultSystemPrompt))
		Expect(cmd.Flags().Lookup("prompt").DefValue).To(Equal(defaultPrompt))
		Expect(cmd.Flags().Lookup("openai-deployment").DefValue).To(Equal("gpt-35-turbo"))
	})

	It("sends the traced request with the debug token", func() {
		cmd := newCmd("--resource-group", "rg", "--arm-deployment", "apim-demo", "--json")
		Expect(cmd.Execute()).To(Succeed())

		Expect(gotPath).To(Equal("/openai/deployments/gpt-35-turbo/chat/completions"))
		Expect(gotHeader.Get(gateway.DebugAuthorizationHeader)).To(Equal("debug-token"))
		Expect(gotHeader.Get(gateway.SubscriptionKeyHeader)).To(Equal("env-key"))

		messages, ok := gotBody["messages"].([]any)
		Expect(ok).To(BeTrue())
		Expect(messages).To(HaveLen(2))
		Expect(messages[0]).To(HaveKeyWithValue("content", defaultSystemPrompt))
		Expect(messages[1]).To(HaveKeyWithValue("content", defaultPrompt))

		var doc map[string]any
		Expect(json.Unmarshal(out.Bytes(), &doc)).To(Succeed())
		Expect(doc["text"]).To(Equal("Time to buy a watch."))
		Expect(doc["debug"]).To(HaveKeyWithValue("service_id", serviceID))
		Expect(doc["debug"]).To(HaveKeyWithValue("status_code", 200.0))
		Expect(doc["debug"]).To(HaveKeyWithValue("subscription_key_present", true))
	})

	It("prints the debugging table and charts", func() {
		cmd := newCmd("--resource-group", "rg", "--arm-deployment", "apim-demo")
		Expect(cmd.Execute()).To(Succeed())

		Expect(out.String()).To(ContainSubstring("Debugging Information"))
		Expect(out.String()).To(ContainSubstring("Usage Info Available"))
		Expect(out.String()).To(ContainSubstring("Token Streaming Timeline"))
		Expect(out.String()).To(ContainSubstring("Completion Tokens"))
	})

	It("requires the resource group", func() {
		cmd := newCmd("--arm-deployment", "apim-demo")
		err := cmd.Execute()
		Expect(gateway.IsConfigurationError(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("resource group"))
	})

	It("rejects a missing subscription key before requesting credentials", func() {
		GinkgoT().Setenv("APIM_SUBSCRIPTION_KEY", "")
		cmd := newCmd("--resource-group", "rg", "--arm-deployment", "apim-demo")

		err := cmd.Execute()
		Expect(gateway.IsConfigurationError(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("subscription key"))
		Expect(runner.calls).To(BeZero())
		Expect(mgmtHits.Load()).To(BeZero())
	})

	It("rejects an unsupported token model before requesting credentials", func() {
		cmd := newCmd("--resource-group", "rg", "--arm-deployment", "apim-demo", "--token-model", "llama3")

		Expect(cmd.Execute()).To(MatchError(tokencount.ErrUnsupportedModel))
		Expect(runner.calls).To(BeZero())
		Expect(mgmtHits.Load()).To(BeZero())
	})

	It("fails when debug credentials cannot be acquired", func() {
		runner.outputs = map[string]string{}
		cmd := newCmd("--resource-group", "rg", "--arm-deployment", "apim-demo")
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("acquiring debug credentials")))
	})
})
