package types

// Tower is one row of a tower parameter table. Field names follow the
// attribute names used in the tower tables exported from the GIS project
// (tlat, tlon, frq, ...), so the same files can be read as CSV or YAML.
type Tower struct {
	Site    string `yaml:"site" json:"site"`
	Network string `yaml:"network" json:"network"`

	// Transmitter site.
	TLat float64 `yaml:"tlat" json:"tlat"`
	TLon float64 `yaml:"tlon" json:"tlon"`
	TAlt float64 `yaml:"talt" json:"talt"`
	Frq  float64 `yaml:"frq" json:"frq"`
	Txw  float64 `yaml:"txw" json:"txw"`
	Bwi  float64 `yaml:"bwi" json:"bwi"`

	// Reference receiver used for area coverage.
	RLat float64 `yaml:"rlat" json:"rlat"`
	RLon float64 `yaml:"rlon" json:"rlon"`
	RAlt float64 `yaml:"ralt" json:"ralt"`
	Rxg  float64 `yaml:"rxg" json:"rxg"`
	Rxs  float64 `yaml:"rxs" json:"rxs"`

	// Antenna.
	Txg float64 `yaml:"txg" json:"txg"`
	Txl float64 `yaml:"txl" json:"txl"`
	Ant int     `yaml:"ant" json:"ant"`
	Azi float64 `yaml:"azi" json:"azi"`
	Tlt float64 `yaml:"tlt" json:"tlt"`
	Hbw float64 `yaml:"hbw" json:"hbw"`
	Vbw float64 `yaml:"vbw" json:"vbw"`
	Pol string  `yaml:"pol" json:"pol"`

	// Propagation model.
	Pm  int     `yaml:"pm" json:"pm"`
	Pe  int     `yaml:"pe" json:"pe"`
	Cli int     `yaml:"cli" json:"cli"`
	Ked int     `yaml:"ked" json:"ked"`
	Rel float64 `yaml:"rel" json:"rel"`
	Ter int     `yaml:"ter" json:"ter"`

	// Environment.
	Clm int     `yaml:"clm" json:"clm"`
	Cll int     `yaml:"cll" json:"cll"`
	Mat float64 `yaml:"mat" json:"mat"`

	// Output.
	Units string  `yaml:"units" json:"units"`
	Col   string  `yaml:"col" json:"col"`
	Out   int     `yaml:"out" json:"out"`
	Ber   int     `yaml:"ber" json:"ber"`
	Mod   int     `yaml:"mod" json:"mod"`
	Nf    float64 `yaml:"nf" json:"nf"`
	Res   float64 `yaml:"res" json:"res"`
	Rad   float64 `yaml:"rad" json:"rad"`
}

// TowerFields lists the attribute names of a tower table in canonical order.
var TowerFields = []string{
	"site", "network",
	"tlat", "tlon", "talt", "frq", "txw", "bwi",
	"rlat", "rlon", "ralt", "rxg", "rxs",
	"txg", "txl", "ant", "azi", "tlt", "hbw", "vbw", "pol",
	"pm", "pe", "cli", "ked", "rel", "ter",
	"clm", "cll", "mat",
	"units", "col", "out", "ber", "mod", "nf", "res", "rad",
}
