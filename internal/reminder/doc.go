// Package reminder schedules one-shot reminders, restores them after a
// restart and hands due reminders to a Messenger for delivery.
//
// A Scheduler owns a Registry of live timers and a Store of persisted
// records. Every lifecycle transition (create, fire, cancel, restore of a
// record) runs under the scheduler mutex, so a reminder is delivered at
// most once and its record is removed as soon as delivery is attempted.
package reminder
