/*
Package config loads agent settings with viper.

Settings come from a YAML file (--config, ./shepherd.yaml or
/etc/shepherd/shepherd.yaml) and are overridden by SHEPHERD_* environment
variables, with dots replaced by underscores:

	SHEPHERD_NODE_NAME=db/2
	SHEPHERD_NODE_LEADER=true
	SHEPHERD_CLUSTER_PEERS=10.0.0.1:7946,10.0.0.2:7946
	SHEPHERD_RESTART_GRANT_TIMEOUT=10m

The agent command first exports dotenv files given with --env-file
(default /etc/shepherd/shepherd.env) through LoadEnvFiles; variables already
in the environment take precedence.

Example file:

	node:
	  name: db/0
	  leader: true
	  data_dir: /var/lib/shepherd
	cluster:
	  addressing: address       # or "name" for <app>-<n>.<app>-endpoints
	  bind_addr: 0.0.0.0:7946
	  peers: [10.0.0.2:7946, 10.0.0.3:7946]
	  tls_dir: /etc/shepherd/tls  # node.crt, node.key, ca.crt; empty for plaintext
	storage:
	  backend: bolt             # bolt, badger or memory
	workload:
	  script_path: /opt/user-install-script
	  environment_path: /etc/environment
	  command_timeout: 180s
	desired:
	  path: /etc/shepherd/desired.yaml
	health:
	  max_swappiness: 1
	  liveness: http://127.0.0.1:8080/healthz
	  liveness_attempts: 5
	  liveness_wait: 1s
	restart:
	  grant_timeout: 0s         # 0 never revokes a grant

The desired workload configuration (setup-script, environment-variables) is
a separate document read by the reconciler, not part of this file.
*/
package config
