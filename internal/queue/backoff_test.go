package queue

import (
	"testing"
	"time"
)

func TestBaseDelayDoublesToCap(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 15 * time.Second},
		{2, 30 * time.Second},
		{3, 60 * time.Second},
		{4, 120 * time.Second},
		{5, 240 * time.Second},
		{6, 480 * time.Second},
		{7, 900 * time.Second},
		{8, 900 * time.Second},
		{50, 900 * time.Second},
	}
	for _, tt := range tests {
		if got := BaseDelay(tt.attempts); got != tt.want {
			t.Errorf("BaseDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestBaseDelayClampsLowAttempts(t *testing.T) {
	if got := BaseDelay(0); got != BackoffBase {
		t.Errorf("BaseDelay(0) = %v, want %v", got, BackoffBase)
	}
	if got := BaseDelay(-3); got != BackoffBase {
		t.Errorf("BaseDelay(-3) = %v, want %v", got, BackoffBase)
	}
}

func TestRetryDelayAddsFivePercent(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 15*time.Second + 750*time.Millisecond},
		{2, 30*time.Second + 1500*time.Millisecond},
		{7, 900*time.Second + 45*time.Second},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.attempts); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
