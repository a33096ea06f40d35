// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

// Package export converts the engine state into a GTFS-Realtime feed.
package export

import (
	"fmt"
	"os"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"

	"github.com/MKuranowski/MuiWoFerry/engine"
	"github.com/MKuranowski/MuiWoFerry/live"
	"github.com/MKuranowski/MuiWoFerry/schedule"
)

// Ptr returns a pointer to v. Useful for constants and literals.
func Ptr[T any](v T) *T { return &v }

// Options describes how the route is identified in the static GTFS feed.
type Options struct {
	RouteID string `yaml:"route_id"`

	// StopIDs maps pier names onto GTFS stop_ids. Piers without a mapping use their name.
	StopIDs map[string]string `yaml:"stop_ids"`
}

func (o Options) stopID(pier string) string {
	if id, ok := o.StopIDs[pier]; ok {
		return id
	}
	return pier
}

func (o Options) trip(d schedule.Direction) *gtfsrt.TripDescriptor {
	return &gtfsrt.TripDescriptor{
		RouteId:     Ptr(o.RouteID),
		DirectionId: Ptr(uint32(d)),
	}
}

// ToGTFSRealtime creates a full-dataset FeedMessage with a TripUpdate for every next departure
// and every live arrival of the state.
func ToGTFSRealtime(s engine.State, o Options) *gtfsrt.FeedMessage {
	entities := make([]*gtfsrt.FeedEntity, 0, len(s.NextDepartures)+len(s.LiveArrivals))

	for _, next := range s.NextDepartures {
		entities = append(entities, departureEntity(next, o))
	}

	for i, arrival := range s.LiveArrivals {
		entities = append(entities, arrivalEntity(i, arrival, o))
	}

	return &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: Ptr("2.0"),
			Incrementality:      Ptr(gtfsrt.FeedHeader_FULL_DATASET),
			Timestamp:           Ptr(uint64(s.Now.Unix())),
		},
		Entity: entities,
	}
}

func departureEntity(next schedule.NextDeparture, o Options) *gtfsrt.FeedEntity {
	trip := o.trip(next.Direction)
	trip.StartDate = Ptr(next.DepartureTime.Format("20060102"))
	trip.StartTime = Ptr(next.DepartureTime.Format("15:04:05"))
	trip.ScheduleRelationship = Ptr(gtfsrt.TripDescriptor_SCHEDULED)

	return &gtfsrt.FeedEntity{
		Id: Ptr(fmt.Sprintf("departure:%d", next.Direction)),
		TripUpdate: &gtfsrt.TripUpdate{
			Trip: trip,
			StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
				{
					StopSequence: Ptr(uint32(0)),
					StopId:       Ptr(o.stopID(next.From)),
					Departure:    &gtfsrt.TripUpdate_StopTimeEvent{Time: Ptr(next.DepartureTime.Unix())},
				},
				{
					StopSequence: Ptr(uint32(1)),
					StopId:       Ptr(o.stopID(next.To)),
					Arrival:      &gtfsrt.TripUpdate_StopTimeEvent{Time: Ptr(next.ArrivalTime.Unix())},
				},
			},
		},
	}
}

func arrivalEntity(idx int, arrival live.Arrival, o Options) *gtfsrt.FeedEntity {
	return &gtfsrt.FeedEntity{
		Id: Ptr(fmt.Sprintf("arrival:%d:%d", arrival.Direction, idx)),
		TripUpdate: &gtfsrt.TripUpdate{
			Trip: o.trip(arrival.Direction),
			StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
				{
					StopId:  Ptr(o.stopID(arrival.To)),
					Arrival: &gtfsrt.TripUpdate_StopTimeEvent{Time: Ptr(arrival.ArrivalTime.Unix())},
				},
			},
		},
	}
}

// SaveProtoToFile atomically replaces target with the marshaled message.
func SaveProtoToFile(m proto.Message, target string, humanReadable bool) (err error) {
	var data []byte
	if humanReadable {
		data, err = prototext.Marshal(m)
	} else {
		data, err = proto.Marshal(m)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal to protobuf: %w", err)
	}

	tempFile := target + ".tmp"
	if err = os.WriteFile(tempFile, data, 0o666); err != nil {
		return fmt.Errorf("failed to write to %s: %w", tempFile, err)
	}

	if err = os.Rename(tempFile, target); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", tempFile, target, err)
	}

	return nil
}

// FileWriter publishes every engine state as a GTFS-Realtime file.
type FileWriter struct {
	Target        string
	HumanReadable bool
	Options       Options
}

func (w *FileWriter) Publish(s engine.State) error {
	return SaveProtoToFile(ToGTFSRealtime(s, w.Options), w.Target, w.HumanReadable)
}
