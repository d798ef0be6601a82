// Package pipeline drives a single capture-to-broadcast run.
//
// A Controller walks the run through its states:
//
//	idle -> initializing -> streaming -> terminating -> stopped
//
// Startup is strictly ordered: the HTTP surface must be listening, then a render
// session is opened and navigated, the page is left to settle, the capture stream
// is acquired and finally the transcoder is spawned with the capture wired to its
// stdin. Any failure on the way is fatal for the run. While streaming the
// controller waits for either the transcoder to exit or an interrupt; whichever
// arrives first starts the teardown, which always runs every step.
//
// All collaborators are interfaces so the state machine can be exercised without
// a browser or an ffmpeg binary.
package pipeline
