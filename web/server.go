package web

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"trafficsim/models"
	"trafficsim/sim"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server exposes the simulation over a REST API and a websocket push feed.
type Server struct {
	Sim           *sim.Simulation
	StatisticsDir string

	clients        map[*websocket.Conn]bool
	clientsMutex   sync.Mutex
	broadcastEvery time.Duration
}

func NewServer(s *sim.Simulation, statisticsDir string) *Server {
	return &Server{
		Sim:            s,
		StatisticsDir:  statisticsDir,
		clients:        make(map[*websocket.Conn]bool),
		broadcastEvery: 200 * time.Millisecond,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/api/status", s.handleStatus)
	r.POST("/api/start", s.handleStart)
	r.POST("/api/stop", s.handleStop)
	r.POST("/api/reset", s.handleReset)
	r.POST("/api/vehicles/priority", s.handleAddPriorityVehicle)
	r.POST("/api/override", s.handleOverride)
	r.POST("/api/override/clear", s.handleClearOverride)
	r.GET("/api/summary", s.handleSummary)
	r.GET("/api/stats", s.handleStats)
	r.GET("/api/csv-data", s.handleCsvData)
	r.GET("/ws", s.handleWs)

	return r
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.broadcastSnapshots()
	log.Infof("web server starting on %s", addr)
	return s.Router().Run(addr)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Sim.Snapshot())
}

func (s *Server) handleStart(c *gin.Context) {
	s.Sim.Start()
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (s *Server) handleStop(c *gin.Context) {
	s.Sim.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) handleReset(c *gin.Context) {
	s.Sim.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

type priorityVehicleRequest struct {
	IntersectionID string `json:"intersection_id" binding:"required"`
	Approach       string `json:"approach" binding:"required"`
}

func (s *Server) handleAddPriorityVehicle(c *gin.Context) {
	var req priorityVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing intersection_id or approach"})
		return
	}

	id, err := s.Sim.AddPriorityVehicle(req.IntersectionID, req.Approach)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "vehicle_id": id})
}

type overrideRequest struct {
	IntersectionID string   `json:"intersection_id" binding:"required"`
	Approach       string   `json:"approach" binding:"required"`
	Signal         string   `json:"signal" binding:"required"`
	Mode           string   `json:"mode"`
	Duration       *float64 `json:"duration"`
}

func (s *Server) handleOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing intersection_id, approach or signal"})
		return
	}
	if req.Mode == "" {
		req.Mode = string(models.ModeManual)
	}

	if err := s.Sim.SubmitOverride(req.IntersectionID, req.Approach, req.Signal, req.Mode, req.Duration); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type clearOverrideRequest struct {
	IntersectionID string `json:"intersection_id" binding:"required"`
	Approach       string `json:"approach" binding:"required"`
}

func (s *Server) handleClearOverride(c *gin.Context) {
	var req clearOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing intersection_id or approach"})
		return
	}

	if err := s.Sim.ClearOverride(req.IntersectionID, req.Approach); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.Sim.ControlSummary())
}

func respondError(c *gin.Context, err error) {
	if errors.Is(err, models.ErrInvalidTarget) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	log.Printf("err handling request: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (s *Server) handleWs(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("err upgrading connection: %v", err)
		return
	}

	s.clientsMutex.Lock()
	s.clients[conn] = true
	total := len(s.clients)
	s.clientsMutex.Unlock()

	log.Infof("new websocket client connected. Total clients: %d", total)

	go s.handleClientMessages(conn)
}

// wsCommand is the message shape accepted from websocket clients, mirroring
// the REST override surface.
type wsCommand struct {
	Action         string   `json:"action"` // manual_override | set_auto_mode
	IntersectionID string   `json:"intersection_id"`
	Approach       string   `json:"approach"`
	Signal         string   `json:"signal"`
	Duration       *float64 `json:"duration"`
}

func (s *Server) handleClientMessages(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		s.clientsMutex.Lock()
		delete(s.clients, conn)
		log.Infof("websocket client disconnected. Remaining clients: %d", len(s.clients))
		s.clientsMutex.Unlock()
	}()

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}

		switch cmd.Action {
		case "manual_override":
			if err := s.Sim.SubmitOverride(cmd.IntersectionID, cmd.Approach, cmd.Signal, string(models.ModeManual), cmd.Duration); err != nil {
				log.Printf("err setting manual override: %v", err)
			}
		case "set_auto_mode":
			if err := s.Sim.ClearOverride(cmd.IntersectionID, cmd.Approach); err != nil {
				log.Printf("err setting auto mode: %v", err)
			}
		default:
			log.Debugf("ignoring unknown websocket action %q", cmd.Action)
		}
	}
}

func (s *Server) broadcastSnapshots() {
	ticker := time.NewTicker(s.broadcastEvery)
	defer ticker.Stop()

	for range ticker.C {
		s.clientsMutex.Lock()
		if len(s.clients) == 0 {
			s.clientsMutex.Unlock()
			continue
		}
		s.clientsMutex.Unlock()

		snapshot := s.Sim.Snapshot()

		s.clientsMutex.Lock()
		for conn := range s.clients {
			if err := conn.WriteJSON(snapshot); err != nil {
				log.Printf("websocket write error: %v", err)
				conn.Close()
				delete(s.clients, conn)
			}
		}
		s.clientsMutex.Unlock()
	}
}
