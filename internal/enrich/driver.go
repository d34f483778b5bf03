package enrich

import "github.com/paddockcloud/lt-engine/internal/state"

// Driver is cached external telemetry about who is in a car.
type Driver struct {
	ID   int
	Name string
}

// DriverSource resolves the current driver for a car within an event.
type DriverSource interface {
	Driver(eventID int, carNumber string) (Driver, bool)
}

// VideoSource resolves in-car video status by transponder.
type VideoSource interface {
	Video(transponderID int) (string, bool)
}

// Drivers attaches driver identity to the named cars (all cars when
// numbers is nil).
func Drivers(s *state.SessionState, src DriverSource, numbers []string) {
	if src == nil {
		return
	}
	for _, car := range selectCars(s, numbers) {
		if d, ok := src.Driver(s.EventID, car.Number); ok {
			car.DriverName = d.Name
			car.DriverID = d.ID
		}
	}
}

// Videos attaches in-car video status to the named cars (all cars when
// numbers is nil).
func Videos(s *state.SessionState, src VideoSource, numbers []string) {
	if src == nil {
		return
	}
	for _, car := range selectCars(s, numbers) {
		if car.TransponderID == 0 {
			continue
		}
		if v, ok := src.Video(car.TransponderID); ok {
			car.InCarVideo = v
		}
	}
}

func selectCars(s *state.SessionState, numbers []string) []*state.CarPosition {
	if numbers == nil {
		cars := make([]*state.CarPosition, 0, len(s.Cars))
		for _, c := range s.Cars {
			cars = append(cars, c)
		}
		return cars
	}
	var cars []*state.CarPosition
	for _, n := range numbers {
		if c, ok := s.Cars[n]; ok {
			cars = append(cars, c)
		}
	}
	return cars
}
