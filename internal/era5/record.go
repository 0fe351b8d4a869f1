package era5

// Record is the wind reading at a given geo location at a given time.
type Record struct {
	// Dimensions
	Timestamp int64
	Latitude  float32
	Longitude float32

	// Metrics
	ZonalWind      float32 // u
	MeridionalWind float32 // v
	Speed          float32
	Direction      float32
}

// Records flattens timestep t of the dataset into records, one per grid point.
// uName and vName name the wind component variables.
func (d *Dataset) Records(t int, uName, vName string) ([]Record, error) {
	if t < 0 || t >= len(d.Times) {
		return nil, timestepError(t, len(d.Times))
	}
	uVar, ok := d.Vars[uName]
	if !ok {
		return nil, unknownVariable(uName)
	}
	vVar, ok := d.Vars[vName]
	if !ok {
		return nil, unknownVariable(vName)
	}
	ts := d.Times[t].UnixMilli()
	recs := make([]Record, len(d.Lat)*len(d.Lon))
	k := 0
	for i, la := range d.Lat {
		for j, lo := range d.Lon {
			u, v := uVar.Values[t][i][j], vVar.Values[t][i][j]
			recs[k].Timestamp = ts
			recs[k].Latitude = float32(la)
			recs[k].Longitude = float32(lo)
			recs[k].ZonalWind = u
			recs[k].MeridionalWind = v
			recs[k].Speed = Speed(u, v)
			recs[k].Direction = Direction(u, v)
			k++
		}
	}
	return recs, nil
}
