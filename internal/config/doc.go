// Package config loads the subscriber YAML configuration.
//
// Values of the form ${VAR} are expanded from the environment before
// parsing, so tokens and DSNs can stay out of the file:
//
//	transport:
//	  kind: grpc
//	  endpoint: https://grpc.mainnet-alpha.sonic.game:10000
//	  token: ${SONIC_GRPC_TOKEN}
//	subscription:
//	  commitment: processed
//	  accounts:
//	    accountSubscribe:
//	      account: [KjkadiKKYic9Qs53qXScUJDSM6KoG9BnBG4s8iNkP6f]
//	storage:
//	  driver: postgres
//	  postgres:
//	    dsn: ${DATABASE_URL}
package config
