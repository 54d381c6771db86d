package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"marketfeed/logger"
	"marketfeed/models"
)

const (
	streamBuffer       = 32
	streamWriteTimeout = 10 * time.Second
)

func streamParams(c *gin.Context) (string, models.Exchange, bool) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return "", "", false
	}
	exchange, err := models.ParseExchange(c.Query("exchange"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return symbol, exchange, true
}

func (s *Server) streamTicker(c *gin.Context) {
	symbol, exchange, ok := streamParams(c)
	if !ok {
		return
	}
	s.bridge(c, models.ChannelTicker, symbol, exchange, func(push func(interface{})) func() {
		return s.feeds.SubscribeTicker(symbol, exchange, func(t models.TickerRecord) { push(t) })
	})
}

func (s *Server) streamOrderbook(c *gin.Context) {
	symbol, exchange, ok := streamParams(c)
	if !ok {
		return
	}
	s.bridge(c, models.ChannelOrderbook, symbol, exchange, func(push func(interface{})) func() {
		return s.feeds.SubscribeOrderbook(symbol, exchange, func(b models.OrderbookRecord) { push(b) })
	})
}

// bridge upgrades the request and forwards every pushed record as a JSON text
// frame until the browser goes away or the server stops. Records arriving
// while the socket is backed up are dropped.
func (s *Server) bridge(c *gin.Context, channel models.Channel, symbol string, exchange models.Exchange, subscribe func(push func(interface{})) func()) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := s.log.WithComponent("api").WithFields(logger.Fields{
		"channel":  string(channel),
		"symbol":   symbol,
		"exchange": string(exchange),
	})

	out := make(chan interface{}, streamBuffer)
	unsubscribe := subscribe(func(v interface{}) {
		select {
		case out <- v:
		default:
		}
	})
	defer unsubscribe()
	log.Debug("browser stream opened")

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			log.Debug("browser stream closed")
			return
		case <-s.stop:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case v := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(v); err != nil {
				log.WithError(err).Debug("browser stream write failed")
				return
			}
		}
	}
}
