package fakeserver

import "rfcoverage/internal/types"

// SampleTowers returns a three-site network used when no inventory is
// given. North and East are 7 km apart; Ridge is about 25 km from both, so
// paths to it need the coarse fallback resolution.
func SampleTowers(network string) []types.Tower {
	site := func(name string, lat, lon, alt, azi float64) types.Tower {
		return types.Tower{
			Site: name, Network: network,
			TLat: lat, TLon: lon, TAlt: alt, Frq: 2600, Txw: 20, Bwi: 10,
			RLat: lat, RLon: lon, RAlt: 2, Rxg: 2, Rxs: -100,
			Txg: 17, Txl: 1, Ant: 1, Azi: azi, Tlt: 3, Hbw: 65, Vbw: 8, Pol: "v",
			Pm: 1, Pe: 2, Cli: 6, Ked: 0, Rel: 95, Ter: 1,
			Clm: 1, Cll: 2, Mat: 0.25,
			Units: "metric", Col: "RAINBOW.dBm", Out: 2, Ber: 0, Mod: 0, Nf: -114, Res: 10, Rad: 5,
		}
	}
	return []types.Tower{
		site("North", 45.560, -73.600, 40, 180),
		site("East", 45.530, -73.520, 35, 270),
		site("Ridge", 45.330, -73.700, 60, 20),
	}
}
