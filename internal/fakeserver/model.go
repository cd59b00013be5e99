package fakeserver

import "math"

const earthRadiusKm = 6371.0

// distanceKm is the great-circle distance between two WGS84 points.
func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1, p2 := radians(lat1), radians(lat2)
	dp := radians(lat2 - lat1)
	dl := radians(lon2 - lon1)
	a := math.Sin(dp/2)*math.Sin(dp/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// bearingDeg is the initial bearing from the first point to the second, in
// [0, 360).
func bearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	p1, p2 := radians(lat1), radians(lat2)
	dl := radians(lon2 - lon1)
	y := math.Sin(dl) * math.Cos(p2)
	x := math.Cos(p1)*math.Sin(p2) - math.Sin(p1)*math.Cos(p2)*math.Cos(dl)
	deg := math.Mod(degrees(math.Atan2(y, x))+360, 360)
	return round(deg, 2)
}

// downtiltDeg is the angle below horizontal from a transmitter at txAltM to a
// receiver at rxAltM, distKm away.
func downtiltDeg(txAltM, rxAltM, distKm float64) float64 {
	if distKm <= 0 {
		return 90
	}
	return round(degrees(math.Atan((txAltM-rxAltM)/(distKm*1000))), 2)
}

// receivedPowerDBm applies free-space path loss to an EIRP built from the
// transmitter power in watts and the antenna gain and losses. The distance is
// floored at 10 m.
func receivedPowerDBm(txW, txGainDBi, txLossDB, rxGainDBi, freqMHz, distKm float64) float64 {
	if txW <= 0 || freqMHz <= 0 {
		return math.Inf(-1)
	}
	d := math.Max(distKm, 0.01)
	fspl := 20*math.Log10(d) + 20*math.Log10(freqMHz) + 32.44
	eirp := 10*math.Log10(txW*1000) + txGainDBi - txLossDB
	return round(eirp+rxGainDBi-fspl, 1)
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
