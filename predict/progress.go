package predict

// Progress receives cosmetic status updates while a prediction runs.
// Implementations must not block; Clear is always called before the
// prediction returns, including on failure.
type Progress interface {
	Update(percent int)
	Clear()
}

type nopProgress struct{}

func (nopProgress) Update(int) {}
func (nopProgress) Clear()     {}

// NopProgress discards all updates.
var NopProgress Progress = nopProgress{}

// ProgressFunc adapts a function to Progress; percent is -1 on Clear.
type ProgressFunc func(percent int)

func (f ProgressFunc) Update(percent int) { f(percent) }
func (f ProgressFunc) Clear()             { f(-1) }
