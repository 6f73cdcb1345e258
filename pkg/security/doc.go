/*
Package security provides the certificates that secure the peer sync channel.

Every fleet has its own root CA. The operator creates it once, keeps ca.key
off the nodes, and issues each node a certificate listing every host name and
address peers dial it on:

	shepherd certs init  --dir ./fleet-ca --fleet db
	shepherd certs issue --ca-dir ./fleet-ca --dir /etc/shepherd/tls --node db/0 --host 10.0.0.1

A node directory holds node.crt, node.key and ca.crt. When cluster.tls_dir
points at one, LoadPeerCredentials turns it into mutual TLS credentials
(TLS 1.3, client certificates required) for both the peer sync server and
the connections the node dials. Without it the channel runs in plaintext.

Node certificates are valid for 90 days; CertNeedsRotation reports when
fewer than 30 remain and the agent logs a warning at startup.
*/
package security
