package relay

import "context"

// Async runs fn on its own goroutine and returns a channel that receives
// exactly one Result. The channel is buffered, so callers that never read
// it do not leak the goroutine. Cancelling ctx abandons the call on a
// best-effort basis; fn still reports a Result.
func Async(ctx context.Context, fn func(context.Context) Result) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- Failure(ReasonNetwork)
			}
		}()
		ch <- fn(ctx)
	}()
	return ch
}

func (r *Relay) NotifyBookingAsync(ctx context.Context, b Booking) <-chan Result {
	return Async(ctx, func(c context.Context) Result { return r.NotifyBooking(c, b) })
}

func (r *Relay) NotifyContactAsync(ctx context.Context, c Contact) <-chan Result {
	return Async(ctx, func(cc context.Context) Result { return r.NotifyContact(cc, c) })
}
