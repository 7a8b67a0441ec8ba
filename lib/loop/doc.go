// Package loop provides the single-threaded event loop every dCfg node runs its
// coordination logic on.
//
// Transport handlers, RAFT listener callbacks and proposal result waiters never touch the
// config-key service directly. They Post a function to the loop, which executes posted
// functions and expired timers strictly one after another. Code running on the loop can
// therefore use plain fields without locks.
//
// Key Components:
//
//   - Loop: Post (fire and forget), Call (post and wait), AfterFunc (one-shot timer that
//     fires on the loop) and Timer.Stop.
//
//   - Queue: The unbounded lock-free multi-producer single-consumer queue that feeds the
//     loop. Values pushed by one producer are received in push order.
//
//   - Clock: The loop reads time only through a Clock. SystemClock is the wall clock,
//     ManualClock is stepped explicitly by tests so timer behavior is deterministic.
//
// Timers are kept in a min-heap ordered by deadline. Expired timers are popped one at a
// time, so a callback can still cancel another timer that expired at the same instant.
package loop
