package remote

import (
	"errors"
	"net"

	log "github.com/sirupsen/logrus"

	"trafficsim/models"
	"trafficsim/sim"
)

// Server accepts external controller connections and dispatches their
// commands to the simulation in ai mode.
type Server struct {
	Sim *sim.Simulation
}

func NewServer(s *sim.Simulation) *Server {
	return &Server{Sim: s}
}

// Serve accepts connections until the listener closes.
func (s *Server) Serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("control listener closed: %v", err)
			return
		}
		log.Infof("control client connected from %s", conn.RemoteAddr())
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	for {
		cmd, err := ReadCommand(conn)
		if err != nil {
			log.Debugf("control client %s disconnected: %v", conn.RemoteAddr(), err)
			return
		}

		resp := s.dispatch(cmd)
		if err := WriteResponse(conn, resp); err != nil {
			log.Printf("err sending control response: %v", err)
			return
		}
	}
}

func (s *Server) dispatch(cmd *Command) *Response {
	switch cmd.Action {
	case "set_signal":
		err := s.Sim.SubmitOverride(cmd.IntersectionID, cmd.Approach, cmd.Signal, string(models.ModeAI), cmd.Duration)
		return toResponse(err)
	case "set_automatic":
		err := s.Sim.ClearOverride(cmd.IntersectionID, cmd.Approach)
		return toResponse(err)
	case "summary":
		summary := s.Sim.ControlSummary()
		return &Response{Success: true, Summary: summary}
	default:
		return &Response{Success: false, Error: "unknown action"}
	}
}

func toResponse(err error) *Response {
	if err == nil {
		return &Response{Success: true}
	}
	if errors.Is(err, models.ErrInvalidTarget) {
		return &Response{Success: false, Error: err.Error()}
	}
	// internal detail stays internal
	log.Printf("err handling control command: %v", err)
	return &Response{Success: false, Error: "internal error"}
}
