package input

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfcoverage/internal/types"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func requireInvalidInput(t *testing.T, err error) {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "got %v", err)
	assert.Equal(t, types.ErrCodeValidationInvalidInput, appErr.Code)
	assert.Equal(t, types.ClassFatal, appErr.Class())
}

func TestLoadPoints(t *testing.T) {
	path := writeFile(t, "civics.csv", []byte("\xef\xbb\xbfCivic,LAT,Lon,street\n"+
		"(1042),45.5,-73.6,Main\n"+
		"\"1043\",45.51,-73.61,Main\n"+
		"\n"))

	pts, err := LoadPoints(path, DefaultPointColumns, "Lakeside")
	require.NoError(t, err)

	require.Len(t, pts.Points, 2)
	assert.Equal(t, types.Point{ID: "1042", Lat: 45.5, Lon: -73.6, Network: "Lakeside"}, pts.Points[0])
	assert.Equal(t, "1043", pts.Points[1].ID)
	assert.True(t, pts.NumericIDs)
	assert.Equal(t, "utf-8", pts.Encoding)
}

func TestLoadPoints_Windows1252(t *testing.T) {
	// "Côte" in Windows-1252.
	path := writeFile(t, "civics.csv", []byte("id,y,x\nC\xf4te-12,45,-73\n"))

	pts, err := LoadPoints(path, PointColumns{ID: "id", Lat: "y", Lon: "x"}, "n")
	require.NoError(t, err)
	assert.Equal(t, "Côte-12", pts.Points[0].ID)
	assert.Equal(t, "windows-1252", pts.Encoding)
	assert.False(t, pts.NumericIDs)
}

func TestLoadPoints_Errors(t *testing.T) {
	cases := map[string]string{
		"missing column": "civic,lat\n1,2\n",
		"bad latitude":   "civic,lat,lon\n1,north,2\n",
		"out of range":   "civic,lat,lon\n1,91,2\n",
		"empty id":       "civic,lat,lon\n,1,2\n",
		"path separator": "civic,lat,lon\na/b,1,2\n",
		"duplicate id":   "civic,lat,lon\n1,1,2\n(1),1,2\n",
		"empty file":     "",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadPoints(writeFile(t, "p.csv", []byte(content)), DefaultPointColumns, "n")
			requireInvalidInput(t, err)
		})
	}

	_, err := LoadPoints(filepath.Join(t.TempDir(), "absent.csv"), DefaultPointColumns, "n")
	requireInvalidInput(t, err)
}

const towerCSV = "site,network,tlat,tlon,talt,frq,txw,bwi,rlat,rlon,ralt,rxg,rxs,txg,txl,ant,azi,tlt,hbw,vbw,pol,pm,pe,cli,ked,rel,ter,clm,cll,mat,units,col,out,ber,mod,nf,res,rad,notes\n" +
	"North,Lakeside,45.1,-73.2,30,5800,0.5,20,45.1,-73.2,8,8,-90,16,0.5,1,120,2,60,10,v,1,2,6,0,95,1,1,2,0.25,metric,RAINBOW.dBm,2,0,0,-120,2,10,hilltop\n" +
	"007,Lakeside,45.2,-73.3,25,5800,0.5,20,45.2,-73.3,8,8,-90,16,0.5,1,300,0,60,10,h,1,2,6,0,95,1,1,2,0.25,metric,7,2,0,0,-120,2,10,\n"

func TestLoadTowers_CSV(t *testing.T) {
	towers, err := LoadTowers(writeFile(t, "towers.csv", []byte(towerCSV)))
	require.NoError(t, err)
	require.Len(t, towers, 2)

	n := towers[0]
	assert.Equal(t, "North", n.Site)
	assert.Equal(t, "Lakeside", n.Network)
	assert.Equal(t, 45.1, n.TLat)
	assert.Equal(t, -73.2, n.TLon)
	assert.Equal(t, 30.0, n.TAlt)
	assert.Equal(t, 5800.0, n.Frq)
	assert.Equal(t, 0.5, n.Txw)
	assert.Equal(t, 1, n.Ant)
	assert.Equal(t, "v", n.Pol)
	assert.Equal(t, 95.0, n.Rel)
	assert.Equal(t, "RAINBOW.dBm", n.Col)
	assert.Equal(t, -120.0, n.Nf)
	assert.Equal(t, 2.0, n.Res)
	assert.Equal(t, 10.0, n.Rad)

	assert.Equal(t, "007", towers[1].Site, "numeric-looking site names stay strings")
	assert.Equal(t, "7", towers[1].Col)
}

func TestLoadTowers_YAML(t *testing.T) {
	list := []byte(`
- site: North
  network: Lakeside
  tlat: 45.1
  tlon: -73.2
  frq: 5800
  res: 2
  rad: 10
- site: South
  network: Lakeside
`)
	towers, err := LoadTowers(writeFile(t, "towers.yaml", list))
	require.NoError(t, err)
	require.Len(t, towers, 2)
	assert.Equal(t, 45.1, towers[0].TLat)
	assert.Equal(t, 5800.0, towers[0].Frq)

	keyed := []byte("towers:\n  - site: A\n    network: n\n    tlat: 1\n")
	towers, err = LoadTowers(writeFile(t, "towers.yml", keyed))
	require.NoError(t, err)
	require.Len(t, towers, 1)
	assert.Equal(t, "A", towers[0].Site)
	assert.Equal(t, 1.0, towers[0].TLat)
}

func TestLoadTowers_Errors(t *testing.T) {
	cases := map[string]struct {
		name, content string
	}{
		"missing site":    {"t.csv", "site,network\n,n\n"},
		"missing network": {"t.yaml", "- site: A\n"},
		"duplicate site":  {"t.yaml", "- {site: A, network: n}\n- {site: A, network: n}\n"},
		"bad number":      {"t.csv", "site,network,tlat\nA,n,north\n"},
		"bad yaml":        {"t.yaml", "site: [\n"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadTowers(writeFile(t, tc.name, []byte(tc.content)))
			requireInvalidInput(t, err)
		})
	}
}

func TestFilterNetwork(t *testing.T) {
	towers := []types.Tower{
		{Site: "A", Network: "LTE"},
		{Site: "B", Network: "WiFi"},
		{Site: "C", Network: "LTE"},
	}
	got := FilterNetwork(towers, "LTE")
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Site)
	assert.Equal(t, "C", got[1].Site)

	assert.Len(t, FilterNetwork(towers, ""), 3)
	assert.Empty(t, FilterNetwork(towers, "5G"))
}
