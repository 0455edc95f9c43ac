package testutils

import (
	"fmt"
	"runtime"
	"testing"
)

func ErrorHere(test *testing.T, str string, args ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	info := fmt.Sprintf("[%s:%d] ", file, line)
	test.Errorf(info+str, args...)
}

func FatalHere(test *testing.T, str string, args ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	info := fmt.Sprintf("[%s:%d] ", file, line)
	test.Fatalf(info+str, args...)
}

// ExpectPanic runs f and reports an error at the caller if it does not panic
func ExpectPanic(test *testing.T, what string, f func()) {
	_, file, line, _ := runtime.Caller(1)
	defer func() {
		if x := recover(); x == nil {
			test.Errorf("[%s:%d] Expected %s panic", file, line, what)
		}
	}()
	f()
}
