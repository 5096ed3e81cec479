package t8n

import "github.com/sirupsen/logrus"

var log = logrus.WithField("prefix", "t8n")
