package bridge_test

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Event Streaming", func() {
	// Other specs may have launched servers; start from a clean slate.
	BeforeEach(func() {
		resp, err := client.Post(ctx, "/shutdown", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.IsSuccess()).To(BeTrue())
	})

	Describe("GET /events", func() {
		It("should return SSE content-type and cache headers", func() {
			req, err := http.NewRequest("GET", testServer.BaseURL+"/events", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Accept", "text/event-stream")

			httpClient := &http.Client{Timeout: 5 * time.Second}
			resp, err := httpClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		})

		It("should announce the connection first", func() {
			sseClient := testServer.SSEClient()
			err := sseClient.Connect(ctx, "/events")
			Expect(err).NotTo(HaveOccurred())
			defer sseClient.Close()

			_, err = sseClient.WaitForPayloadType("bridge.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should stream server lifecycle events", func() {
			sseClient := testServer.SSEClient()
			err := sseClient.Connect(ctx, "/events")
			Expect(err).NotTo(HaveOccurred())
			defer sseClient.Close()

			_, err = sseClient.WaitForPayloadType("bridge.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.StartServer(ctx, "view")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())

			payload, err := sseClient.WaitForPayloadType("view.server.started", 10*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var data struct {
				Name string `json:"name"`
				Port int    `json:"port"`
			}
			Expect(json.Unmarshal(payload.Properties, &data)).To(Succeed())
			Expect(data.Name).To(Equal("view"))
		})

		It("should notify when a new log signal appears", func() {
			sseClient := testServer.SSEClient()
			err := sseClient.Connect(ctx, "/events")
			Expect(err).NotTo(HaveOccurred())
			defer sseClient.Close()

			_, err = sseClient.WaitForPayloadType("bridge.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			signalDir := testServer.SignalDir("view")
			Expect(os.MkdirAll(signalDir, 0o755)).To(Succeed())

			signal := []byte(`{"location": "logs/run-7.eval"}`)
			path := filepath.Join(signalDir, "run-7.json")
			Expect(os.WriteFile(path, signal, 0o644)).To(Succeed())

			payload, err := sseClient.WaitForPayloadType("log.produced", 10*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var data struct {
				Location string `json:"location"`
			}
			Expect(json.Unmarshal(payload.Properties, &data)).To(Succeed())
			Expect(data.Location).To(Equal("logs/run-7.eval"))
		})
	})
})
