package adminhttp

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dd0wney/bloomd/pkg/bloomderrors"
	"github.com/dd0wney/bloomd/pkg/manager"
)

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).String(),
	})
}

type filterInfoResponse struct {
	Name        string  `json:"name"`
	Size        uint64  `json:"size"`
	Capacity    int     `json:"capacity"`
	ByteSize    int64   `json:"byte_size"`
	Probability float64 `json:"probability"`
	SetHits     uint64  `json:"set_hits"`
	SetMisses   uint64  `json:"set_misses"`
	CheckHits   uint64  `json:"check_hits"`
	CheckMisses uint64  `json:"check_misses"`
	PageIns     uint64  `json:"page_ins"`
	PageOuts    uint64  `json:"page_outs"`
}

func infoToResponse(info manager.Info) filterInfoResponse {
	return filterInfoResponse{
		Name:        info.Name,
		Size:        info.Size,
		Capacity:    info.Capacity,
		ByteSize:    info.ByteSize,
		Probability: info.Probability,
		SetHits:     info.Counters.SetHits,
		SetMisses:   info.Counters.SetMisses,
		CheckHits:   info.Counters.CheckHits,
		CheckMisses: info.Counters.CheckMisses,
		PageIns:     info.Counters.PageIns,
		PageOuts:    info.Counters.PageOuts,
	}
}

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	list := s.mgr.List()
	out := make([]filterInfoResponse, 0, len(list))
	for _, info := range list {
		out = append(out, infoToResponse(info))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleFilterInfo(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	info, err := s.mgr.Info(name)
	if err != nil {
		s.respondNotFoundOrError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, infoToResponse(info))
}

func (s *Server) handleFilterConf(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	conf, err := s.mgr.Conf(name)
	if err != nil {
		s.respondNotFoundOrError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, conf)
}

func (s *Server) handleDropFilter(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.mgr.Drop(name); err != nil {
		s.respondNotFoundOrError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
}

func (s *Server) handleFlushFilter(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.mgr.FlushFilter(name); err != nil {
		s.respondNotFoundOrError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (s *Server) handleFlushAll(w http.ResponseWriter, r *http.Request) {
	s.mgr.FlushAll()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (s *Server) respondNotFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, bloomderrors.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "no such filter")
		return
	}
	s.respondError(w, http.StatusInternalServerError, err.Error())
}
