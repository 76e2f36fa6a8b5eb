package bridge_test

import (
	"encoding/base64"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/inspectbridge/inspectbridge/citest/testutil"
	"github.com/inspectbridge/inspectbridge/pkg/types"
)

var _ = Describe("Webview RPC Proxy", func() {
	Describe("view_request", func() {
		It("should proxy to the view server and return the body", func() {
			resp, err := client.CallRPC(ctx, "view_request", types.ViewRequestParams{Path: "api/logs"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal(200))
			Expect(resp.BodyEncoding).To(Equal(types.EncodingUTF8))

			var body struct {
				Files []string `json:"files"`
			}
			Expect(json.Unmarshal([]byte(resp.Body), &body)).To(Succeed())
			Expect(body.Files).To(ContainElement("logs/run-1.eval"))
		})

		It("should attach the launch token and no-cache headers", func() {
			_, err := client.CallRPC(ctx, "view_request", types.ViewRequestParams{Path: "api/logs"})
			Expect(err).NotTo(HaveOccurred())

			var seen *testutil.RecordedRequest
			for _, req := range testServer.Backend.Requests() {
				if req.Path == "/api/logs" {
					r := req
					seen = &r
				}
			}
			Expect(seen).NotTo(BeNil())
			Expect(seen.Authorization).NotTo(BeEmpty())
			Expect(seen.CacheControl).To(Equal("no-cache"))
		})

		It("should reject a request without a path", func() {
			_, err := client.CallRPC(ctx, "view_request", types.ViewRequestParams{})
			Expect(err).To(HaveOccurred())
		})

		It("should reject an unknown method", func() {
			_, err := client.CallRPC(ctx, "no_such_method")

			var rpcErr *testutil.RPCError
			Expect(err).To(BeAssignableToTypeOf(rpcErr))
			Expect(err.(*testutil.RPCError).StatusCode).To(Equal(400))
		})
	})

	Describe("scans_list", func() {
		It("should pass the directory through to the scan server", func() {
			resp, err := client.CallRPC(ctx, "scans_list", "/work/scans")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal(200))

			var seen bool
			for _, req := range testServer.Backend.Requests() {
				if req.Path == "/api/scans" && req.Query.Get("dir") == "/work/scans" {
					seen = true
				}
			}
			Expect(seen).To(BeTrue())
		})
	})

	Describe("scan_get", func() {
		It("should fetch a scan file by name", func() {
			resp, err := client.CallRPC(ctx, "scan_get", "scan-1.json")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal(200))
			Expect(resp.Body).To(ContainSubstring("secrets"))
		})

		It("should resolve a missing scan to the NotFound sentinel", func() {
			resp, err := client.CallRPC(ctx, "scan_get", "deleted.json")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Body).To(Equal("NotFound"))
		})
	})

	Describe("scanner_dataframe", func() {
		It("should carry arrow bytes through the envelope base64-encoded", func() {
			resp, err := client.CallRPC(ctx, "scanner_dataframe", map[string]string{
				"file":    "scan-1.json",
				"scanner": "secrets",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.BodyEncoding).To(Equal(types.EncodingBase64))

			decoded, err := base64.StdEncoding.DecodeString(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded).To(Equal(testServer.Backend.Dataframe))
		})
	})
})
