package realtime_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/realtime"
)

type staticLoader struct {
	principal internal.Principal
}

func (l *staticLoader) LoadPrincipal(ctx context.Context, accessToken string) (internal.Principal, error) {
	if accessToken != "valid-token" {
		return internal.Principal{}, errors.New("bad token")
	}
	return l.principal, nil
}

var _ = Describe("Realtime", func() {
	var (
		hub     *realtime.Hub
		server  *httptest.Server
		userID  uuid.UUID
		sockets []*websocket.Conn
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		userID = uuid.New()
		hub = realtime.NewHub(logger)
		handler := realtime.NewHandler(hub, &staticLoader{principal: internal.Principal{ID: userID, Email: "alice@teamplan.ru"}}, logger)
		server = httptest.NewServer(http.HandlerFunc(handler.Serve))
		sockets = nil
	})

	AfterEach(func() {
		for _, conn := range sockets {
			conn.Close()
		}
		server.Close()
	})

	dial := func(token string) (*websocket.Conn, *http.Response, error) {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/notifications?token=" + token
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if conn != nil {
			sockets = append(sockets, conn)
		}
		return conn, resp, err
	}

	readFrame := func(conn *websocket.Conn) realtime.Frame {
		var frame realtime.Frame
		Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		ExpectWithOffset(1, conn.ReadJSON(&frame)).To(Succeed())
		return frame
	}

	It("rejects a connection without a token", func() {
		_, resp, err := dial("")
		Expect(err).To(MatchError(websocket.ErrBadHandshake))
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("rejects an invalid token", func() {
		_, resp, err := dial("stolen")
		Expect(err).To(MatchError(websocket.ErrBadHandshake))
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("greets the client and tracks the connection", func() {
		conn, _, err := dial("valid-token")
		Expect(err).NotTo(HaveOccurred())

		frame := readFrame(conn)
		Expect(frame.Type).To(Equal("connected"))
		Expect(frame.UserID).To(Equal(userID.String()))
		Expect(hub.ConnectionCount(userID)).To(Equal(1))

		conn.Close()
		Eventually(func() int {
			return hub.ConnectionCount(userID)
		}).WithTimeout(2 * time.Second).Should(BeZero())
	})

	It("answers ping with pong", func() {
		conn, _, err := dial("valid-token")
		Expect(err).NotTo(HaveOccurred())
		Expect(readFrame(conn).Type).To(Equal("connected"))

		Expect(conn.WriteMessage(websocket.TextMessage, []byte("ping"))).To(Succeed())
		Expect(readFrame(conn).Type).To(Equal("pong"))
	})

	It("delivers hub frames to every socket of the user", func() {
		first, _, err := dial("valid-token")
		Expect(err).NotTo(HaveOccurred())
		second, _, err := dial("valid-token")
		Expect(err).NotTo(HaveOccurred())
		Expect(readFrame(first).Type).To(Equal("connected"))
		Expect(readFrame(second).Type).To(Equal("connected"))

		hub.Deliver(userID, realtime.Frame{Type: "notification", Data: "Напоминание"})

		Expect(readFrame(first).Type).To(Equal("notification"))
		Expect(readFrame(second).Type).To(Equal("notification"))
	})

	It("interleaves pong replies with hub deliveries on one socket", func() {
		conn, _, err := dial("valid-token")
		Expect(err).NotTo(HaveOccurred())
		Expect(readFrame(conn).Type).To(Equal("connected"))

		const rounds = 20
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < rounds; i++ {
				hub.Deliver(userID, realtime.Frame{Type: "notification"})
			}
		}()

		for i := 0; i < rounds; i++ {
			Expect(conn.WriteMessage(websocket.TextMessage, []byte("ping"))).To(Succeed())
		}

		pongs, notifications := 0, 0
		for pongs < rounds || notifications < rounds {
			switch frame := readFrame(conn); frame.Type {
			case "pong":
				pongs++
			case "notification":
				notifications++
			}
		}
		Eventually(done).Should(BeClosed())
		Expect(hub.ConnectionCount(userID)).To(Equal(1))
	})
})
