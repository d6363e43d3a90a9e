// Package capture runs capture sessions: it reads the device record stream,
// feeds a pipeline that writes the output file, and publishes progress and
// status attributes under <prefix>:CAPTURE:.
//
// The Capture attribute is the on/off toggle. Writing 1 makes the Supervisor
// cancel any running session, wait for it to finalize, and start a new one;
// writing 0 cancels the running session. RunSession always finalizes: the
// terminal End is enqueued, the pipeline is stopped exactly once, the status
// is published, and Capturing is cleared last.
package capture
