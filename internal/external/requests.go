package external

import (
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"

	"rfcoverage/internal/types"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Transmitter describes the radiating site.
type Transmitter struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
	Alt float64 `json:"alt" validate:"gte=0"`
	Frq float64 `json:"frq" validate:"gt=0"`
	Txw float64 `json:"txw" validate:"gt=0"`
	Bwi float64 `json:"bwi" validate:"gt=0"`
}

// Receiver describes the receiving end of a path or the reference receiver of
// an area calculation.
type Receiver struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
	Alt float64 `json:"alt" validate:"gte=0"`
	Rxg float64 `json:"rxg"`
	Rxs float64 `json:"rxs"`
	Bwi float64 `json:"bwi,omitempty"`
}

// Antenna describes the transmitting antenna pattern and orientation.
type Antenna struct {
	Txg float64 `json:"txg"`
	Txl float64 `json:"txl" validate:"gte=0"`
	Ant int     `json:"ant" validate:"gte=0"`
	Azi float64 `json:"azi" validate:"gte=0,lte=360"`
	Tlt float64 `json:"tlt" validate:"gte=-90,lte=90"`
	Hbw float64 `json:"hbw" validate:"gte=0,lte=360"`
	Vbw float64 `json:"vbw" validate:"gte=0,lte=360"`
	Pol string  `json:"pol" validate:"omitempty,oneof=v h V H"`
}

// Model selects the propagation model and its parameters.
type Model struct {
	Pm  int     `json:"pm" validate:"gte=0"`
	Pe  int     `json:"pe" validate:"gte=0"`
	Cli int     `json:"cli" validate:"gte=0"`
	Ked int     `json:"ked" validate:"gte=0"`
	Rel float64 `json:"rel" validate:"gte=0,lte=100"`
	Ter int     `json:"ter" validate:"gte=0"`
}

// Environment selects the clutter profile.
type Environment struct {
	Clm int     `json:"clm" validate:"gte=0"`
	Cll int     `json:"cll" validate:"gte=0"`
	Mat float64 `json:"mat" validate:"gte=0"`
}

// Output controls the rendering of the result, including the resolution in
// metres (res) and the radius in kilometres (rad).
type Output struct {
	Units string  `json:"units"`
	Col   string  `json:"col"`
	Out   int     `json:"out" validate:"gte=0"`
	Ber   int     `json:"ber" validate:"gte=0"`
	Mod   int     `json:"mod" validate:"gte=0"`
	Nf    float64 `json:"nf"`
	Res   float64 `json:"res" validate:"gt=0"`
	Rad   float64 `json:"rad" validate:"gt=0"`
}

// PropagationRequest is the JSON body of the /path and /area endpoints.
type PropagationRequest struct {
	Site        string      `json:"site" validate:"required"`
	Network     string      `json:"network" validate:"required"`
	Transmitter Transmitter `json:"transmitter"`
	Antenna     Antenna     `json:"antenna"`
	Receiver    Receiver    `json:"receiver"`
	Model       Model       `json:"model"`
	Environment Environment `json:"environment"`
	Output      Output      `json:"output"`
}

// NewPropagationRequest builds a validated request with the transmitter,
// antenna, model, environment and output taken from tx and the given
// receiver.
func NewPropagationRequest(tx types.Tower, rx Receiver) (*PropagationRequest, error) {
	req := &PropagationRequest{
		Site:    tx.Site,
		Network: tx.Network,
		Transmitter: Transmitter{
			Lat: tx.TLat, Lon: tx.TLon, Alt: tx.TAlt,
			Frq: tx.Frq, Txw: tx.Txw, Bwi: tx.Bwi,
		},
		Antenna: Antenna{
			Txg: tx.Txg, Txl: tx.Txl, Ant: tx.Ant, Azi: tx.Azi,
			Tlt: tx.Tlt, Hbw: tx.Hbw, Vbw: tx.Vbw, Pol: tx.Pol,
		},
		Receiver: rx,
		Model: Model{
			Pm: tx.Pm, Pe: tx.Pe, Cli: tx.Cli,
			Ked: tx.Ked, Rel: tx.Rel, Ter: tx.Ter,
		},
		Environment: Environment{Clm: tx.Clm, Cll: tx.Cll, Mat: tx.Mat},
		Output: Output{
			Units: tx.Units, Col: tx.Col, Out: tx.Out, Ber: tx.Ber,
			Mod: tx.Mod, Nf: tx.Nf, Res: tx.Res, Rad: tx.Rad,
		},
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Validate checks every section of the request.
func (r *PropagationRequest) Validate() error {
	if err := getValidator().Struct(r); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidParams,
			fmt.Sprintf("invalid propagation request for site %q", r.Site), err)
	}
	return nil
}

// WithResolution returns a copy of the request rendered at res metres over a
// radius of rad kilometres.
func (r PropagationRequest) WithResolution(res, rad float64) *PropagationRequest {
	r.Output.Res = res
	r.Output.Rad = rad
	return &r
}

// AreaReceiver returns the reference receiver of an area calculation for t.
func AreaReceiver(t types.Tower) Receiver {
	return Receiver{Lat: t.RLat, Lon: t.RLon, Alt: t.RAlt, Rxg: t.Rxg, Rxs: t.Rxs, Bwi: t.Bwi}
}

// SiteReceiver places the receiver at tower t's own transmitter site, for
// tower-to-tower paths.
func SiteReceiver(t types.Tower) Receiver {
	return Receiver{Lat: t.TLat, Lon: t.TLon, Alt: t.TAlt, Rxg: t.Rxg, Rxs: t.Rxs}
}

// BestServerRequest is the form submitted to the best-server endpoint for one
// point.
type BestServerRequest struct {
	PointID        string  `validate:"required"`
	Network        string  `validate:"required"`
	Lat            float64 `validate:"gte=-90,lte=90"`
	Lon            float64 `validate:"gte=-180,lte=180"`
	ReceiverHeight float64 `validate:"gt=0"`
	ReceiverGain   float64
}

// Form encodes the request with the account credentials.
func (r BestServerRequest) Form(uid, key string) url.Values {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return url.Values{
		"civic": {r.PointID},
		"uid":   {uid},
		"key":   {key},
		"rxh":   {f(r.ReceiverHeight)},
		"rxg":   {f(r.ReceiverGain)},
		"net":   {r.Network},
		"lat":   {f(r.Lat)},
		"lon":   {f(r.Lon)},
	}
}
