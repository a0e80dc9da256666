package providers

import (
	"github.com/resibo-ph/resibo/internal/providers/email"
	"github.com/resibo-ph/resibo/internal/providers/payment"
	"github.com/resibo-ph/resibo/internal/providers/pdf"
	"github.com/resibo-ph/resibo/internal/providers/sms"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	sms.Module,
	payment.Module,
	pdf.Module,
)
