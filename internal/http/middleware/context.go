package middlewarex

import "context"

type ctxKey string

const (
	ctxStationID ctxKey = "station_id"
)

func WithStationID(ctx context.Context, stationID string) context.Context {
	return context.WithValue(ctx, ctxStationID, stationID)
}

func StationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxStationID).(string)
	return v, ok && v != ""
}
