package deploy

import (
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/orbital/client/amqp"

	goamqp "github.com/Azure/go-amqp"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

// WithMTLS authenticates the AMQP connection with a client certificate.
func WithMTLS(mtls commoncfg.MTLS) amqp.ClientOption {
	return func(o *goamqp.ConnOptions) error {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&mtls)
		if err != nil {
			return errs.Wrap(config.ErrLoadMTLSConfig, err)
		}

		o.TLSConfig = tlsConfig
		o.SASLType = goamqp.SASLTypeExternal("")

		return nil
	}
}
