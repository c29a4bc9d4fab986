package credentials_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tokenprobe/pkg/credentials"
)

var _ = Describe("Manager", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	Describe("NewManager", func() {
		It("creates a manager with an override directory", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr).NotTo(BeNil())
			Expect(mgr.GetTarget()).To(Equal(filepath.Join(tmpDir, "credentials.toml")))
		})
	})

	Describe("Load", func() {
		It("returns empty credentials when no file exists", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds).NotTo(BeNil())
			Expect(creds.Providers).To(BeEmpty())
		})

		It("loads existing credentials", func() {
			data := `version = 0

[providers.apim]
api_key = "sub-test-key"
`
			err := os.WriteFile(filepath.Join(tmpDir, "credentials.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Providers).To(HaveKey("apim"))
			Expect(creds.Providers["apim"].APIKey).To(Equal("sub-test-key"))
		})

		It("returns error for malformed TOML", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "credentials.toml"), []byte("not valid [[["), 0o600)
			Expect(err).NotTo(HaveOccurred())

			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			creds, err := mgr.Load()
			Expect(err).To(HaveOccurred())
			Expect(creds).To(BeNil())
		})
	})

	Describe("Save", func() {
		It("persists credentials to disk with restricted permissions", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			creds := &credentials.Credentials{
				Providers: map[string]credentials.ProviderCredential{
					credentials.APIM: {APIKey: "sub-test"},
				},
			}
			err = mgr.Save(creds)
			Expect(err).NotTo(HaveOccurred())

			info, err := os.Stat(filepath.Join(tmpDir, "credentials.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("returns error for nil credentials", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = mgr.Save(nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("SetKey", func() {
		It("overwrites an existing key", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.SetKey(credentials.APIM, "sub-old")).To(Succeed())
			Expect(mgr.SetKey(credentials.APIM, "sub-new")).To(Succeed())

			key, err := mgr.GetKey(credentials.APIM)
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sub-new"))
		})

		It("preserves other provider keys", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.SetKey(credentials.APIM, "sub-1")).To(Succeed())
			Expect(mgr.SetKey("staging", "sub-2")).To(Succeed())

			key, err := mgr.GetKey(credentials.APIM)
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sub-1"))

			key, err = mgr.GetKey("staging")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sub-2"))
		})
	})

	Describe("GetKey", func() {
		It("returns empty string for unknown provider", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			key, err := mgr.GetKey("nonexistent")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(BeEmpty())
		})
	})

	Describe("RemoveKey", func() {
		It("removes an existing key", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.SetKey(credentials.APIM, "sub-test")).To(Succeed())
			Expect(mgr.RemoveKey(credentials.APIM)).To(Succeed())

			key, err := mgr.GetKey(credentials.APIM)
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(BeEmpty())
		})

		It("is a no-op for nonexistent provider", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.RemoveKey("nonexistent")).To(Succeed())
		})
	})

	Describe("ListProviders", func() {
		It("returns stored providers in sorted order", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.SetKey("staging", "sub-1")).To(Succeed())
			Expect(mgr.SetKey(credentials.APIM, "sub-2")).To(Succeed())

			providers, err := mgr.ListProviders()
			Expect(err).NotTo(HaveOccurred())
			Expect(providers).To(Equal([]string{"apim", "staging"}))
		})
	})

	Describe("Resolve", func() {
		var mgr *credentials.Manager

		BeforeEach(func() {
			var err error
			mgr, err = credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			GinkgoT().Setenv("APIM_SUBSCRIPTION_KEY", "")
		})

		It("prefers the environment variable", func() {
			Expect(mgr.SetKey(credentials.APIM, "stored")).To(Succeed())
			GinkgoT().Setenv("APIM_SUBSCRIPTION_KEY", "from-env")

			key, source, err := mgr.Resolve(credentials.APIM)
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("from-env"))
			Expect(source).To(Equal(credentials.SourceEnv))
		})

		It("falls back to the stored key", func() {
			Expect(mgr.SetKey(credentials.APIM, "stored")).To(Succeed())

			key, source, err := mgr.Resolve(credentials.APIM)
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("stored"))
			Expect(source).To(Equal(credentials.SourceStore))
		})

		It("reports no source when nothing is configured", func() {
			key, source, err := mgr.Resolve(credentials.APIM)
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(BeEmpty())
			Expect(source).To(Equal(credentials.SourceNone))
		})
	})
})

var _ = Describe("EnvVarForProvider", func() {
	It("returns APIM_SUBSCRIPTION_KEY for apim", func() {
		Expect(credentials.EnvVarForProvider("apim")).To(Equal("APIM_SUBSCRIPTION_KEY"))
	})

	It("returns empty string for unknown provider", func() {
		Expect(credentials.EnvVarForProvider("unknown")).To(BeEmpty())
	})
})

var _ = Describe("IsSupportedProvider", func() {
	It("accepts apim", func() {
		Expect(credentials.SupportedProviders()).To(ConsistOf("apim"))
		Expect(credentials.IsSupportedProvider("apim")).To(BeTrue())
	})

	It("rejects everything else", func() {
		Expect(credentials.IsSupportedProvider("openai")).To(BeFalse())
	})
})
