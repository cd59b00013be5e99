package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfcoverage/internal/types"
)

func newTestPropagationClient(t *testing.T, serverURL string) *PropagationClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-propagation",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"rfcoverage-test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewPropagationClient(base, PropagationClientConfig{
		ServerURL: serverURL + "/",
		APIURL:    serverURL,
		UID:       "20935",
		APIKey:    types.SecretString("k3y"),
	})
}

func testTower(site string, lat, lon float64) types.Tower {
	return types.Tower{
		Site: site, Network: "Lakeside",
		TLat: lat, TLon: lon, TAlt: 30, Frq: 5800, Txw: 0.5, Bwi: 20,
		RLat: lat, RLon: lon, RAlt: 8, Rxg: 8, Rxs: -90,
		Txg: 16, Txl: 0, Ant: 1, Azi: 120, Tlt: 2, Hbw: 60, Vbw: 10, Pol: "v",
		Pm: 1, Pe: 2, Cli: 6, Ked: 0, Rel: 95, Ter: 1,
		Clm: 1, Cll: 2, Mat: 0.25,
		Units: "metric", Col: "RAINBOW.dBm", Out: 2, Ber: 0, Mod: 0, Nf: -120, Res: 2, Rad: 10,
	}
}

func TestBestServer_FormAndRawBody(t *testing.T) {
	var got url.Values
	var path, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		w.Write([]byte(`[{"Server name":"Lakeside_North"}]`))
	}))
	defer server.Close()

	c := newTestPropagationClient(t, server.URL)
	doc, err := c.BestServer(context.Background(), BestServerRequest{
		PointID: "1042", Network: "Lakeside", Lat: 45.5, Lon: -73.25,
		ReceiverHeight: 8, ReceiverGain: 8,
	})
	require.NoError(t, err)

	assert.Equal(t, `[{"Server name":"Lakeside_North"}]`, string(doc))
	assert.Equal(t, "/API/network/index.php", path)
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, "1042", got.Get("civic"))
	assert.Equal(t, "20935", got.Get("uid"))
	assert.Equal(t, "k3y", got.Get("key"))
	assert.Equal(t, "8", got.Get("rxh"))
	assert.Equal(t, "8", got.Get("rxg"))
	assert.Equal(t, "Lakeside", got.Get("net"))
	assert.Equal(t, "45.5", got.Get("lat"))
	assert.Equal(t, "-73.25", got.Get("lon"))
}

func TestBestServer_ErrorDocumentReturnedVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"Invalid key"}`))
	}))
	defer server.Close()

	c := newTestPropagationClient(t, server.URL)
	doc, err := c.BestServer(context.Background(), BestServerRequest{
		PointID: "1", Network: "n", Lat: 1, Lon: 1, ReceiverHeight: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"error":"Invalid key"}`, string(doc))
}

func TestBestServer_ServerFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestPropagationClient(t, server.URL)
	_, err := c.BestServer(context.Background(), BestServerRequest{
		PointID: "1", Network: "n", Lat: 1, Lon: 1, ReceiverHeight: 8,
	})

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ClassTransient, appErr.Class())
}

func TestBestServer_InvalidRequest(t *testing.T) {
	c := newTestPropagationClient(t, "http://127.0.0.1:1")
	_, err := c.BestServer(context.Background(), BestServerRequest{PointID: "1", Network: "n", Lat: 91, ReceiverHeight: 8})

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidParams, appErr.Code)
}

func TestPathProfile_Success(t *testing.T) {
	var body PropagationRequest
	var key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/path", r.URL.Path)
		key = r.Header.Get("key")
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &body))
		w.Write([]byte(`{"Chart image":"https://x/chart.png","Transmitters":[{"Signal power at receiver dBm":-71.4}]}`))
	}))
	defer server.Close()

	c := newTestPropagationClient(t, server.URL)
	req, err := NewPropagationRequest(testTower("A", 45, -73), SiteReceiver(testTower("B", 45.1, -73.1)))
	require.NoError(t, err)

	res, err := c.PathProfile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, -71.4, res.SignalDBm)
	assert.Equal(t, "https://x/chart.png", res.ChartURL)
	assert.Equal(t, "20935-k3y", key)
	assert.Equal(t, "A", body.Site)
	assert.Equal(t, 45.1, body.Receiver.Lat)
	assert.Equal(t, -73.1, body.Receiver.Lon)
	assert.Equal(t, 30.0, body.Receiver.Alt)
	assert.Equal(t, 45.0, body.Transmitter.Lat)
	assert.Equal(t, 2.0, body.Output.Res)
}

func TestPathProfile_ErrorDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Resolution too fine for this radius"}`))
	}))
	defer server.Close()

	c := newTestPropagationClient(t, server.URL)
	req, err := NewPropagationRequest(testTower("A", 45, -73), SiteReceiver(testTower("B", 45.1, -73.1)))
	require.NoError(t, err)

	_, err = c.PathProfile(context.Background(), req)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamPropagation, appErr.Code)
	assert.Equal(t, "Resolution too fine for this radius", appErr.Details["error"])
}

func TestPathProfile_ServerErrorWithErrorDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Radius too large for 2m resolution"}`))
	}))
	defer server.Close()

	c := newTestPropagationClient(t, server.URL)
	req, err := NewPropagationRequest(testTower("A", 45, -73), SiteReceiver(testTower("B", 45.1, -73.1)))
	require.NoError(t, err)

	_, err = c.PathProfile(context.Background(), req)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamPropagation, appErr.Code)
	assert.Equal(t, "Radius too large for 2m resolution", appErr.Details["error"])
}

func TestPathProfile_ServerErrorWithoutDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	c := newTestPropagationClient(t, server.URL)
	req, err := NewPropagationRequest(testTower("A", 45, -73), SiteReceiver(testTower("B", 45.1, -73.1)))
	require.NoError(t, err)

	_, err = c.PathProfile(context.Background(), req)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)

	body, ok := FailureBody(err)
	assert.True(t, ok)
	assert.Equal(t, "<html>bad gateway</html>", string(body))
}

func TestPathProfile_MissingSignal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Chart image":"u","Transmitters":[]}`))
	}))
	defer server.Close()

	c := newTestPropagationClient(t, server.URL)
	req, _ := NewPropagationRequest(testTower("A", 45, -73), SiteReceiver(testTower("B", 45.1, -73.1)))

	_, err := c.PathProfile(context.Background(), req)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeParseMissingKey, appErr.Code)
}

func TestArea(t *testing.T) {
	var body PropagationRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/area", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"area":12.5,"coverage":87.2,"kmz":"https://x/a.kmz"}`))
	}))
	defer server.Close()

	c := newTestPropagationClient(t, server.URL)
	tw := testTower("North", 45, -73)
	tw.RLat, tw.RLon = 45.01, -73.02
	req, err := NewPropagationRequest(tw, AreaReceiver(tw))
	require.NoError(t, err)

	res, err := c.Area(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 12.5, res.Area)
	assert.Equal(t, 87.2, res.Coverage)
	assert.Equal(t, 45.01, body.Receiver.Lat)
	assert.Equal(t, 20.0, body.Receiver.Bwi)
}

func TestNewPropagationRequest_Validation(t *testing.T) {
	tw := testTower("A", 45, -73)
	tw.Res = 0

	_, err := NewPropagationRequest(tw, SiteReceiver(tw))
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidParams, appErr.Code)

	tw = testTower("", 45, -73)
	_, err = NewPropagationRequest(tw, SiteReceiver(tw))
	assert.Error(t, err)
}

func TestWithResolution(t *testing.T) {
	req, err := NewPropagationRequest(testTower("A", 45, -73), SiteReceiver(testTower("B", 45, -73)))
	require.NoError(t, err)

	coarse := req.WithResolution(30, 30)
	assert.Equal(t, 30.0, coarse.Output.Res)
	assert.Equal(t, 30.0, coarse.Output.Rad)
	assert.Equal(t, 2.0, req.Output.Res, "original request must be unchanged")
	assert.Equal(t, 10.0, req.Output.Rad)
}

func TestErrorMessage(t *testing.T) {
	cases := []struct {
		doc    string
		msg    string
		wantOK bool
	}{
		{`{"error":"Out of credits"}`, "Out of credits", true},
		{`{"error":{"code":7}}`, `{"code":7}`, true},
		{`{"error":null}`, "", false},
		{`{"area":1}`, "", false},
		{`[{"error":"x"}]`, "", false},
		{`not json`, "", false},
	}
	for _, tc := range cases {
		msg, ok := ErrorMessage([]byte(tc.doc))
		assert.Equal(t, tc.wantOK, ok, tc.doc)
		assert.Equal(t, tc.msg, msg, tc.doc)
	}
}
