package system

import "fmt"

// Traceback reports the program counter and link register of all four
// cores, marking whichever one the scheduler was running when execution
// stopped; the CLI entrypoint prints it once Run returns a non-nil error.
func (s *System) Traceback() string {
	current := s.Sched.Current()
	out := ""

	secMark := ""
	if current == s.secSchedCore {
		secMark = " <-"
	}
	out += fmt.Sprintf("SEC:  PC=%08X LR=%08X%s\n", s.SecCore.PC(), s.SecCore.LR(), secMark)

	for i := 0; i < 3; i++ {
		appMark := ""
		if current == s.appSchedCore[i] {
			appMark = " <-"
		}
		out += fmt.Sprintf("APP%d: PC=%08X%s\n", i, s.AppCore[i].PC(), appMark)
	}
	return out
}
