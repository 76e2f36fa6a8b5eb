package bridge_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/inspectbridge/inspectbridge/pkg/types"
)

var _ = Describe("Server Lifecycle", func() {
	// Other specs may have launched servers; start from a clean slate.
	BeforeEach(func() {
		resp, err := client.Post(ctx, "/shutdown", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.IsSuccess()).To(BeTrue())
	})

	Describe("GET /status", func() {
		It("should report the installed package", func() {
			status, err := client.GetStatus(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Package.Available).To(BeTrue())
			Expect(status.Package.Version).To(Equal("0.3.70"))
		})

		It("should list every managed server as stopped", func() {
			status, err := client.GetStatus(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Servers).To(HaveLen(2))
			for _, srv := range status.Servers {
				Expect(srv.State).To(Equal(types.ServerStopped))
			}
		})
	})

	Describe("POST /server/{name}/start", func() {
		It("should warm up the view server", func() {
			resp, err := client.StartServer(ctx, "view")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())

			var started struct {
				Name string `json:"name"`
				Port int    `json:"port"`
			}
			Expect(resp.JSON(&started)).To(Succeed())
			Expect(started.Name).To(Equal("view"))
			Expect(started.Port).To(Equal(testServer.Backend.Port()))

			status, err := client.GetStatus(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, srv := range status.Servers {
				if srv.Name == "view" {
					Expect(srv.State).To(Equal(types.ServerRunning))
				}
			}
		})

		It("should reject an unknown profile", func() {
			resp, err := client.StartServer(ctx, "bogus")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(404))
		})
	})

	Describe("POST /server/{name}/stop", func() {
		It("should stop a running server", func() {
			resp, err := client.StartServer(ctx, "view")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())

			resp, err = client.StopServer(ctx, "view")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())

			status, err := client.GetStatus(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, srv := range status.Servers {
				Expect(srv.State).To(Equal(types.ServerStopped))
			}
		})
	})

	Describe("lazy launch", func() {
		It("should start the view server on the first proxied request", func() {
			_, err := client.CallRPC(ctx, "view_request", types.ViewRequestParams{Path: "api/logs"})
			Expect(err).NotTo(HaveOccurred())

			status, err := client.GetStatus(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, srv := range status.Servers {
				if srv.Name == "view" {
					Expect(srv.State).To(Equal(types.ServerRunning))
				}
			}
		})
	})
})
