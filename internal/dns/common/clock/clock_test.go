package clock

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}

	// Capture time before and after the clock call
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	// The clock's time should be between our before/after measurements
	if now.Before(before) {
		t.Errorf("Clock time %v is before measurement time %v", now, before)
	}
	if now.After(after) {
		t.Errorf("Clock time %v is after measurement time %v", now, after)
	}
}

func TestRealClock_Now_Multiple_Calls(t *testing.T) {
	clock := RealClock{}

	first := clock.Now()
	time.Sleep(1 * time.Millisecond) // Small delay to ensure time difference
	second := clock.Now()

	if !second.After(first) {
		t.Errorf("Second call %v should be after first call %v", second, first)
	}
}

func TestMockClock_Now(t *testing.T) {
	fixedTime := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: fixedTime}

	now := clock.Now()

	if !now.Equal(fixedTime) {
		t.Errorf("Expected %v, got %v", fixedTime, now)
	}
}

func TestMockClock_Now_Consistent(t *testing.T) {
	fixedTime := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: fixedTime}

	first := clock.Now()
	second := clock.Now()

	if !first.Equal(second) {
		t.Errorf("Mock clock should return consistent time: first=%v, second=%v", first, second)
	}
}

func TestMockClock_Advance(t *testing.T) {
	initialTime := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: initialTime}

	// Test advancing by various durations
	testCases := []struct {
		name     string
		duration time.Duration
		expected time.Time
	}{
		{
			name:     "advance by 1 hour",
			duration: 1 * time.Hour,
			expected: initialTime.Add(1 * time.Hour),
		},
		{
			name:     "advance by 30 minutes more",
			duration: 30 * time.Minute,
			expected: initialTime.Add(1*time.Hour + 30*time.Minute),
		},
		{
			name:     "advance by 1 microsecond",
			duration: 1 * time.Microsecond,
			expected: initialTime.Add(1*time.Hour + 30*time.Minute + 1*time.Microsecond),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clock.Advance(tc.duration)
			now := clock.Now()

			if !now.Equal(tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, now)
			}
		})
	}
}

func TestMockClock_Advance_Negative_Duration(t *testing.T) {
	initialTime := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: initialTime}

	// Advance backwards
	clock.Advance(-1 * time.Hour)
	now := clock.Now()
	expected := initialTime.Add(-1 * time.Hour)

	if !now.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, now)
	}
}

func TestMockClock_Advance_Zero_Duration(t *testing.T) {
	initialTime := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: initialTime}

	// Advance by zero
	clock.Advance(0)
	now := clock.Now()

	if !now.Equal(initialTime) {
		t.Errorf("Expected %v, got %v", initialTime, now)
	}
}

func TestClock_Interface_Compliance(t *testing.T) {
	// Test that both implementations satisfy the Clock interface
	var _ Clock = RealClock{}
	var _ Clock = &MockClock{}
}

func TestMockClock_Simulation(t *testing.T) {
	// Simulate a realistic scenario where we need to test time-dependent behavior
	startTime := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: startTime}

	// Simulate a day's worth of operations
	events := []struct {
		description  string
		advance      time.Duration
		expectedHour int
	}{
		{"Start of day", 0, 9},
		{"Mid-morning", 2 * time.Hour, 11},
		{"Lunch time", 2 * time.Hour, 13},
		{"Afternoon", 3 * time.Hour, 16},
		{"End of day", 2 * time.Hour, 18},
	}

	for _, event := range events {
		t.Run(event.description, func(t *testing.T) {
			if event.advance > 0 {
				clock.Advance(event.advance)
			}

			now := clock.Now()
			if now.Hour() != event.expectedHour {
				t.Errorf("Expected hour %d, got %d (time: %v)", event.expectedHour, now.Hour(), now)
			}
		})
	}
}

func TestMockClock_Window_Simulation(t *testing.T) {
	// Simulate a 60 second sliding window boundary
	startTime := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: startTime}

	observed := clock.Now()
	window := 60 * time.Second

	testPoints := []struct {
		name    string
		advance time.Duration
		stale   bool
	}{
		{"immediately", 0, false},
		{"halfway through window", 30 * time.Second, false},
		{"just inside window", 59 * time.Second, false},
		{"at window edge", 60 * time.Second, true},
		{"after window", 61 * time.Second, true},
	}

	for _, tp := range testPoints {
		t.Run(tp.name, func(t *testing.T) {
			clock.Set(startTime)
			clock.Advance(tp.advance)

			stale := clock.Now().Sub(observed) >= window
			if stale != tp.stale {
				t.Errorf("advanced %v: expected stale=%v, got %v", tp.advance, tp.stale, stale)
			}
		})
	}
}

func TestMockClock_Set(t *testing.T) {
	clock := &MockClock{}
	target := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock.Set(target)
	if !clock.Now().Equal(target) {
		t.Errorf("Expected %v, got %v", target, clock.Now())
	}
}

func TestMockClock_Concurrent_Access(t *testing.T) {
	// Readers and a writer may share the mock clock
	initialTime := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: initialTime}

	done := make(chan bool, 11)

	go func() {
		clock.Advance(0)
		done <- true
	}()

	// Start 10 goroutines that read the time
	for i := 0; i < 10; i++ {
		go func() {
			now := clock.Now()
			if !now.Equal(initialTime) {
				t.Errorf("Expected %v, got %v", initialTime, now)
			}
			done <- true
		}()
	}

	// Wait for all goroutines to complete
	for i := 0; i < 11; i++ {
		<-done
	}
}
