// Package ratelimit provides the pacing primitives for the harvest pipeline.
//
// Two concerns live here:
//
// Token Bucket:
//   - Fixed capacity bucket that refills after a specified period
//   - Paces headless-browser page navigations so feed inspection does not
//     hammer the platform
//
// Uniform Delayer:
//   - Draws a random pause from configurable [min, max] second bounds
//     between successive media downloads
//   - The randomization defeats fixed-interval request detection
//   - Bounds are read per call, so live setting changes apply immediately
//
// Usage:
//
//	// Token bucket: 20 page loads per minute
//	limiter := ratelimit.NewTokenBucket(20, time.Minute)
//
//	if limiter.Allow() {
//	    // Proceed with navigation
//	} else {
//	    limiter.Wait()
//	}
//
//	// Uniform delay between downloads, bounds from the settings store
//	delayer := ratelimit.NewUniformDelayer(store.WaitBounds)
//	if err := delayer.Delay(ctx); err != nil {
//	    // context cancelled mid-pause
//	}
package ratelimit
