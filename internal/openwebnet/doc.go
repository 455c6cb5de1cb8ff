// Package openwebnet implements the OpenWebNet protocol spoken by BTicino/Legrand
// MyHOME gateways.
//
// It provides:
//   - A typed model of inbound bus frames (lighting, automation, heating, energy,
//     dry contacts, auxiliaries, CEN/CEN+ pushbuttons, gateway management)
//   - Builders for outbound command and status-request frames
//   - A TCP session that performs the command/event session handshake, including
//     the numeric OPEN password challenge
//
// # Frames
//
// Every frame starts with '*' and ends with "##":
//
//	*WHO*WHAT*WHERE##            command / event
//	*#WHO*WHERE##                status request
//	*#WHO*WHERE*DIM*VAL*...##    dimension reply
//	*#WHO*WHERE*#DIM*VAL*...##   dimension write
//	*#*1##  *#*0##               ACK / NACK
//
// # Sessions
//
// A gateway serves two kinds of session on the same TCP port. A command session
// (*99*0##) accepts frames and answers ACK/NACK. An event session (*99*1##)
// streams every frame seen on the bus. Use Dialer to open either kind:
//
//	d := &openwebnet.TCPDialer{Host: "192.168.1.35", Port: 20000, Password: "12345"}
//	s, err := d.Dial(ctx, openwebnet.EventSession)
//	msg, err := s.Next(ctx)
package openwebnet
