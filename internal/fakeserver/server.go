// Package fakeserver emulates the propagation service endpoints used by the
// coverage tools: the legacy best-server form endpoint and the JSON /path and
// /area endpoints. Signals come from a free-space link budget over a fixed
// set of towers, so results are deterministic and suitable for offline runs
// and end-to-end tests.
package fakeserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rfcoverage/internal/external"
	"rfcoverage/internal/types"
)

// maxRequestBodySize is the maximum allowed size of a request body (1 MB).
const maxRequestBodySize = 1 << 20

// DefaultMaxFineDistanceKm is the longest path the service renders below
// FineResolutionLimitM before answering with an error document.
const DefaultMaxFineDistanceKm = 15.0

// FineResolutionLimitM is the resolution below which long paths are refused.
const FineResolutionLimitM = 30.0

// Config configures a Server.
type Config struct {
	UID    string
	APIKey string

	// Towers is the deployed network inventory served by every endpoint. A
	// tower with no network belongs to every network.
	Towers []types.Tower

	// MaxFineDistanceKm overrides DefaultMaxFineDistanceKm when positive.
	MaxFineDistanceKm float64

	// FailCivics answers the best-server endpoint with a 503 for these IDs.
	FailCivics []string

	Logger *slog.Logger
}

// Server is an in-process propagation service.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router *chi.Mux

	bestServerCalls atomic.Int64
	pathCalls       atomic.Int64
	areaCalls       atomic.Int64
}

// New builds a Server and mounts its routes.
func New(cfg Config) *Server {
	if cfg.MaxFineDistanceKm <= 0 {
		cfg.MaxFineDistanceKm = DefaultMaxFineDistanceKm
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: logger, router: chi.NewRouter()}
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger(logger))

	s.router.Post("/API/network/index.php", s.handleBestServer)
	s.router.Post("/path", s.handlePath)
	s.router.Post("/area", s.handleArea)
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Calls reports how many requests each endpoint has served.
func (s *Server) Calls() (bestServer, path, area int64) {
	return s.bestServerCalls.Load(), s.pathCalls.Load(), s.areaCalls.Load()
}

type bestServerTransmitter struct {
	SignalDBm    float64 `json:"Signal power at receiver dBm"`
	DistanceKm   float64 `json:"Distance to receiver km"`
	AzimuthDeg   float64 `json:"Azimuth to receiver deg"`
	DowntiltDeg  float64 `json:"Downtilt angle deg"`
	Latitude     float64 `json:"Latitude"`
	Longitude    float64 `json:"Longitude"`
	HeightM      float64 `json:"Antenna height m"`
	FrequencyMHz float64 `json:"Frequency MHz"`
	PowerW       float64 `json:"Power W"`
	GainDBi      float64 `json:"Antenna gain dBi"`
}

type bestServerReceiver struct {
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
	HeightM   float64 `json:"Height m"`
	GainDBi   float64 `json:"Antenna gain dBi"`
}

type bestServerEntry struct {
	ServerName   string                  `json:"Server name"`
	ChartImage   string                  `json:"Chart image"`
	Engine       string                  `json:"Engine"`
	Transmitters []bestServerTransmitter `json:"Transmitters"`
	Receiver     []bestServerReceiver    `json:"Receiver"`
}

func (s *Server) handleBestServer(w http.ResponseWriter, r *http.Request) {
	s.bestServerCalls.Add(1)
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed form body")
		return
	}

	if r.PostForm.Get("uid") != s.cfg.UID || r.PostForm.Get("key") != s.cfg.APIKey {
		writeError(w, http.StatusOK, "Invalid API key")
		return
	}
	civic := r.PostForm.Get("civic")
	if slices.Contains(s.cfg.FailCivics, civic) {
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}

	lat, errLat := strconv.ParseFloat(r.PostForm.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.PostForm.Get("lon"), 64)
	rxh, errH := strconv.ParseFloat(r.PostForm.Get("rxh"), 64)
	rxg, errG := strconv.ParseFloat(r.PostForm.Get("rxg"), 64)
	if errLat != nil || errLon != nil || errH != nil || errG != nil {
		writeError(w, http.StatusOK, "Invalid receiver parameters")
		return
	}

	network := r.PostForm.Get("net")
	var entries []bestServerEntry
	for _, t := range s.cfg.Towers {
		if t.Network != "" && t.Network != network {
			continue
		}
		d := distanceKm(t.TLat, t.TLon, lat, lon)
		entries = append(entries, bestServerEntry{
			ServerName: network + "_" + strings.ReplaceAll(t.Site, " ", "_"),
			ChartImage: fmt.Sprintf("https://fake.invalid/charts/%s/%s.png", network, civic),
			Engine:     "free-space",
			Transmitters: []bestServerTransmitter{{
				SignalDBm:    receivedPowerDBm(t.Txw, t.Txg, t.Txl, rxg, t.Frq, d),
				DistanceKm:   round(d, 3),
				AzimuthDeg:   bearingDeg(t.TLat, t.TLon, lat, lon),
				DowntiltDeg:  downtiltDeg(t.TAlt, rxh, d),
				Latitude:     t.TLat,
				Longitude:    t.TLon,
				HeightM:      t.TAlt,
				FrequencyMHz: t.Frq,
				PowerW:       t.Txw,
				GainDBi:      t.Txg,
			}},
			Receiver: []bestServerReceiver{{Latitude: lat, Longitude: lon, HeightM: rxh, GainDBi: rxg}},
		})
	}
	if len(entries) == 0 {
		writeError(w, http.StatusOK, fmt.Sprintf("No sites found in network %s", network))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type pathTransmitter struct {
	SignalDBm  float64 `json:"Signal power at receiver dBm"`
	DistanceKm float64 `json:"Distance to receiver km"`
}

type pathResponse struct {
	ChartImage   string            `json:"Chart image"`
	Transmitters []pathTransmitter `json:"Transmitters"`
	Elapsed      float64           `json:"elapsed"`
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	s.pathCalls.Add(1)
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	d := distanceKm(req.Transmitter.Lat, req.Transmitter.Lon, req.Receiver.Lat, req.Receiver.Lon)
	if req.Output.Res < FineResolutionLimitM && d > s.cfg.MaxFineDistanceKm {
		writeError(w, http.StatusOK, fmt.Sprintf(
			"Path of %.1f km exceeds the limit for %.0f m resolution", d, req.Output.Res))
		return
	}

	writeJSON(w, http.StatusOK, pathResponse{
		ChartImage: fmt.Sprintf("https://fake.invalid/charts/%s/%s_path.png", req.Network, req.Site),
		Transmitters: []pathTransmitter{{
			SignalDBm:  receivedPowerDBm(req.Transmitter.Txw, req.Antenna.Txg, req.Antenna.Txl, req.Receiver.Rxg, req.Transmitter.Frq, d),
			DistanceKm: round(d, 3),
		}},
		Elapsed: 0.1,
	})
}

func (s *Server) handleArea(w http.ResponseWriter, r *http.Request) {
	s.areaCalls.Add(1)
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	// Coverage radius is where the link budget meets the receiver sensitivity.
	radius := 0.0
	for d := 0.05; d <= req.Output.Rad; d += 0.05 {
		if receivedPowerDBm(req.Transmitter.Txw, req.Antenna.Txg, req.Antenna.Txl, req.Receiver.Rxg, req.Transmitter.Frq, d) < req.Receiver.Rxs {
			break
		}
		radius = d
	}
	area := math.Pi * radius * radius

	writeJSON(w, http.StatusOK, external.AreaResult{
		Area:     round(area, 3),
		Coverage: round(100*area/(math.Pi*req.Output.Rad*req.Output.Rad), 2),
		KMZ:      fmt.Sprintf("https://fake.invalid/archive/%s/%s.kmz", req.Network, req.Site),
		Elapsed:  0.2,
	})
}

// decodeRequest checks the key header and decodes the JSON body. It writes
// the error response itself and reports whether to continue.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*external.PropagationRequest, bool) {
	if r.Header.Get("key") != s.cfg.UID+"-"+s.cfg.APIKey {
		writeError(w, http.StatusUnauthorized, "Invalid API key")
		return nil, false
	}

	var req external.PropagationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed JSON body")
		return nil, false
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusOK, err.Error())
		return nil, false
	}
	return &req, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// requestLogger logs one line per request with the trace header set by the
// client, at a level chosen by status.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start),
			}
			if trace := r.Header.Get("X-B3-TraceId"); trace != "" {
				args = append(args, "trace_id", trace)
			}
			switch {
			case status >= 500:
				logger.Error("request completed", args...)
			case status >= 400:
				logger.Warn("request completed", args...)
			default:
				logger.Debug("request completed", args...)
			}
		})
	}
}
