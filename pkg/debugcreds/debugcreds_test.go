package debugcreds_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tokenprobe/pkg/debugcreds"
)

const serviceID = "/subscriptions/sub/resourceGroups/rg/providers/Microsoft.ApiManagement/service/apim-demo"

// fakeRunner answers az invocations by matching on the joined arguments.
type fakeRunner struct {
	outputs map[string]string
	err     error
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	if f.err != nil {
		return "", f.err
	}
	for needle, out := range f.outputs {
		if strings.Contains(call, needle) {
			return out, nil
		}
	}
	return "", nil
}

var _ = Describe("Client", func() {
	var (
		runner   *fakeRunner
		mgmt     *httptest.Server
		lastPath string
		lastAuth string
		lastBody map[string]any
		status   int
		client   *debugcreds.Client
	)

	BeforeEach(func() {
		status = http.StatusOK
		runner = &fakeRunner{outputs: map[string]string{
			"outputResources":  serviceID + "\n" + serviceID + "/apis/openai",
			"gatewayUrl":       "https://apim-demo.azure-api.net",
			"get-access-token": "arm-token",
		}}

		mgmt = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastPath = r.URL.RequestURI()
			lastAuth = r.Header.Get("Authorization")
			lastBody = nil
			_ = json.NewDecoder(r.Body).Decode(&lastBody)

			w.WriteHeader(status)
			if status == http.StatusOK {
				fmt.Fprint(w, `{"token":"debug-token"}`)
				return
			}
			fmt.Fprint(w, `{"error":{"code":"AuthorizationFailed"}}`)
		}))

		client = debugcreds.New(
			debugcreds.WithRunner(runner),
			debugcreds.WithManagementURL(mgmt.URL+"/"),
		)
	})

	AfterEach(func() {
		mgmt.Close()
	})

	deployment := debugcreds.Deployment{ResourceGroup: "rg", Name: "apim-deploy"}

	It("acquires credentials end to end", func() {
		creds, err := client.Acquire(context.Background(), deployment)
		Expect(err).NotTo(HaveOccurred())

		Expect(creds.ServiceID).To(Equal(serviceID))
		Expect(creds.GatewayURL).To(Equal("https://apim-demo.azure-api.net"))
		Expect(creds.Token).To(Equal("debug-token"))

		Expect(lastPath).To(Equal(serviceID + "/gateways/managed/listDebugCredentials?api-version=2024-06-01-preview"))
		Expect(lastAuth).To(Equal("Bearer arm-token"))
		Expect(lastBody).To(Equal(map[string]any{
			"credentialsExpireAfter": "PT1H",
			"apiId":                  serviceID + "/apis/openai",
			"purposes":               []any{"tracing"},
		}))
	})

	It("queries the deployment through the az CLI", func() {
		_, err := client.Resolve(context.Background(), deployment)
		Expect(err).NotTo(HaveOccurred())

		Expect(runner.calls).To(ConsistOf(
			"az deployment group show --name apim-deploy -g rg --query properties.outputResources[].id -o tsv",
			"az deployment group show --name apim-deploy -g rg --query properties.outputs.gatewayUrl.value -o tsv",
		))
	})

	It("requires a resource group and deployment name", func() {
		_, err := client.Resolve(context.Background(), debugcreds.Deployment{Name: "x"})
		Expect(err).To(HaveOccurred())
		Expect(runner.calls).To(BeEmpty())
	})

	It("fails on empty deployment outputs", func() {
		delete(runner.outputs, "gatewayUrl")

		_, err := client.Resolve(context.Background(), deployment)
		Expect(errors.Is(err, debugcreds.ErrEmptyOutput)).To(BeTrue())
	})

	It("surfaces runner failures", func() {
		runner.err = errors.New("az: command not found")

		_, err := client.Acquire(context.Background(), deployment)
		Expect(err).To(MatchError(ContainSubstring("az: command not found")))
	})

	It("surfaces the management response body on failure", func() {
		status = http.StatusForbidden

		_, err := client.ListDebugCredentials(context.Background(), serviceID, "arm-token")
		Expect(err).To(MatchError(ContainSubstring("status 403")))
		Expect(err).To(MatchError(ContainSubstring("AuthorizationFailed")))
	})
})
