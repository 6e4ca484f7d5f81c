// Package servo is the control half of the depth servo: a fixed-period
// scheduler reads the latest target snapshot, runs one PID controller per
// axis and sends the resulting actuation command to the vehicle.
//
// The vision half (package depth) and the scheduler run on independent
// goroutines. They share nothing but the TargetTracker, which publishes
// immutable snapshots through an atomic pointer, so a tick always sees a
// complete target from some recent frame.
package servo
