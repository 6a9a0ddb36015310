// Package ssh reads remote install directories over SFTP.
package ssh
