// Package selector turns cached best-server documents into per-point rows
// holding the K strongest candidate towers, classified against a threshold.
package selector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"rfcoverage/internal/types"
)

// ParseError reports a response document that cannot be turned into
// readings. ServiceError holds the document's own "error" field, if any.
type ParseError struct {
	Code         types.ErrorCode
	Reason       string
	ServiceError string
	Err          error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Reason)
	if e.ServiceError != "" {
		msg += " (service error: " + e.ServiceError + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Message is the text written to the error row: the service's own error when
// it sent one, otherwise the reason the document was rejected.
func (e *ParseError) Message() string {
	if e.ServiceError != "" {
		return e.ServiceError
	}
	return e.Reason
}

// number accepts JSON numbers and numeric strings.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		*n = number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

type transmitterDoc struct {
	SignalDBm   *number `json:"Signal power at receiver dBm"`
	DistanceKm  *number `json:"Distance to receiver km"`
	AzimuthDeg  *number `json:"Azimuth to receiver deg"`
	DowntiltDeg *number `json:"Downtilt angle deg"`
	Latitude    *number `json:"Latitude"`
	Longitude   *number `json:"Longitude"`
	HeightM     *number `json:"Antenna height m"`
}

type receiverDoc struct {
	Latitude  *number `json:"Latitude"`
	Longitude *number `json:"Longitude"`
}

type serverDoc struct {
	ServerName   *string          `json:"Server name"`
	ChartImage   string           `json:"Chart image"`
	Transmitters []transmitterDoc `json:"Transmitters"`
	Receiver     []receiverDoc    `json:"Receiver"`
}

// Parse extracts one Reading per tower from a best-server document. A tower
// listed twice keeps its first position and its last values.
func Parse(doc []byte, network string) ([]types.Reading, error) {
	var servers []serverDoc
	if err := json.Unmarshal(doc, &servers); err != nil {
		return nil, &ParseError{
			Code:         types.ErrCodeParseMalformedJSON,
			Reason:       "response is not a list of servers",
			ServiceError: serviceError(doc),
			Err:          err,
		}
	}
	if len(servers) == 0 {
		return nil, &ParseError{Code: types.ErrCodeParseNoReadings, Reason: "response lists no towers"}
	}

	readings := make([]types.Reading, 0, len(servers))
	index := make(map[string]int, len(servers))
	for i, s := range servers {
		r, err := s.reading(network)
		if err != nil {
			err.Reason = fmt.Sprintf("server %d: %s", i, err.Reason)
			return nil, err
		}
		if j, seen := index[r.Tower]; seen {
			readings[j] = r
			continue
		}
		index[r.Tower] = len(readings)
		readings = append(readings, r)
	}
	return readings, nil
}

func (s serverDoc) reading(network string) (types.Reading, *ParseError) {
	missing := func(key string) *ParseError {
		return &ParseError{Code: types.ErrCodeParseMissingKey, Reason: fmt.Sprintf("missing %q", key)}
	}

	if s.ServerName == nil {
		return types.Reading{}, missing("Server name")
	}
	tower, ok := TowerName(*s.ServerName, network)
	if !ok {
		return types.Reading{}, &ParseError{
			Code:   types.ErrCodeParseServerName,
			Reason: fmt.Sprintf("server name %q does not belong to network %q", *s.ServerName, network),
		}
	}
	if len(s.Transmitters) == 0 {
		return types.Reading{}, missing("Transmitters")
	}
	if len(s.Receiver) == 0 {
		return types.Reading{}, missing("Receiver")
	}

	tx, rx := s.Transmitters[0], s.Receiver[0]
	required := []struct {
		key string
		v   *number
	}{
		{"Signal power at receiver dBm", tx.SignalDBm},
		{"Distance to receiver km", tx.DistanceKm},
		{"Azimuth to receiver deg", tx.AzimuthDeg},
		{"Downtilt angle deg", tx.DowntiltDeg},
		{"Receiver.Latitude", rx.Latitude},
		{"Receiver.Longitude", rx.Longitude},
	}
	for _, f := range required {
		if f.v == nil {
			return types.Reading{}, missing(f.key)
		}
	}

	return types.Reading{
		Tower:        tower,
		PowerDBm:     float64(*tx.SignalDBm),
		DistanceKm:   float64(*tx.DistanceKm),
		AzimuthDeg:   ReceiverAzimuth(float64(*tx.AzimuthDeg)),
		DowntiltDeg:  ReceiverDowntilt(float64(*tx.DowntiltDeg)),
		ChartURL:     s.ChartImage,
		RxLat:        float64(*rx.Latitude),
		RxLon:        float64(*rx.Longitude),
		TowerLat:     optional(tx.Latitude),
		TowerLon:     optional(tx.Longitude),
		TowerHeightM: optional(tx.HeightM),
	}, nil
}

func optional(n *number) float64 {
	if n == nil {
		return 0
	}
	return float64(*n)
}

// TowerName derives the tower name from a server name of the form
// "<network>_<tower>", turning underscores into spaces.
func TowerName(serverName, network string) (string, bool) {
	_, rest, ok := strings.Cut(serverName, network+"_")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(strings.ReplaceAll(rest, "_", " ")), true
}

// ReceiverAzimuth reverses a transmitter-to-receiver bearing so that it
// points from the receiver back at the tower. 180 maps to 360, not 0.
func ReceiverAzimuth(deg float64) float64 {
	if deg <= 180 {
		return deg + 180
	}
	return deg - 180
}

// ReceiverDowntilt expresses the transmitter downtilt as seen from the
// receiver.
func ReceiverDowntilt(deg float64) float64 {
	return -deg
}

func serviceError(doc []byte) string {
	var env struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(doc, &env); err != nil || env.Error == nil {
		return ""
	}
	if s, ok := env.Error.(string); ok {
		return s
	}
	return fmt.Sprint(env.Error)
}
