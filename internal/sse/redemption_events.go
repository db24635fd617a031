package sse

import (
	"context"
	"sync"

	"ms-checkin/internal/checkin"
)

// RedemptionEventEmitter fans redemption outcomes out to SSE subscribers:
// live check-in dashboards subscribe per event, station monitors per
// station. Slow subscribers are skipped, never waited on: a stalled
// dashboard must not back-pressure the scan lane.
type RedemptionEventEmitter struct {
	eventClients     map[string][]chan checkin.RedemptionEvent
	eventClientMutex sync.RWMutex

	stationClients     map[string][]chan checkin.RedemptionEvent
	stationClientMutex sync.RWMutex
}

func NewRedemptionEventEmitter() *RedemptionEventEmitter {
	return &RedemptionEventEmitter{
		eventClients:   make(map[string][]chan checkin.RedemptionEvent),
		stationClients: make(map[string][]chan checkin.RedemptionEvent),
	}
}

// SubscribeToEvent adds a client to an event's redemption stream.
func (e *RedemptionEventEmitter) SubscribeToEvent(ctx context.Context, eventID string) chan checkin.RedemptionEvent {
	clientChan := make(chan checkin.RedemptionEvent, 10)

	e.eventClientMutex.Lock()
	e.eventClients[eventID] = append(e.eventClients[eventID], clientChan)
	e.eventClientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeEventClient(eventID, clientChan)
	}()

	return clientChan
}

// SubscribeToStation adds a client to a station's redemption stream.
func (e *RedemptionEventEmitter) SubscribeToStation(ctx context.Context, stationID string) chan checkin.RedemptionEvent {
	clientChan := make(chan checkin.RedemptionEvent, 10)

	e.stationClientMutex.Lock()
	e.stationClients[stationID] = append(e.stationClients[stationID], clientChan)
	e.stationClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeStationClient(stationID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts a processed redemption to all subscribed clients.
func (e *RedemptionEventEmitter) Emit(event checkin.RedemptionEvent) {
	e.eventClientMutex.RLock()
	for _, clientChan := range e.eventClients[event.EventID] {
		select {
		case clientChan <- event:
		default: // client buffer full, drop rather than block
		}
	}
	e.eventClientMutex.RUnlock()

	if event.StationID == "" {
		return
	}

	e.stationClientMutex.RLock()
	for _, clientChan := range e.stationClients[event.StationID] {
		select {
		case clientChan <- event:
		default:
		}
	}
	e.stationClientMutex.RUnlock()
}

func (e *RedemptionEventEmitter) removeEventClient(eventID string, clientChan chan checkin.RedemptionEvent) {
	e.eventClientMutex.Lock()
	defer e.eventClientMutex.Unlock()

	clients := e.eventClients[eventID]
	for i, c := range clients {
		if c == clientChan {
			e.eventClients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.eventClients[eventID]) == 0 {
		delete(e.eventClients, eventID)
	}
}

func (e *RedemptionEventEmitter) removeStationClient(stationID string, clientChan chan checkin.RedemptionEvent) {
	e.stationClientMutex.Lock()
	defer e.stationClientMutex.Unlock()

	clients := e.stationClients[stationID]
	for i, c := range clients {
		if c == clientChan {
			e.stationClients[stationID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.stationClients[stationID]) == 0 {
		delete(e.stationClients, stationID)
	}
}
