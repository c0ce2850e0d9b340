package telegram

import logx "hostelrelay/pkg/logx"

func noLog() logx.Logger { return logx.Nop() }
